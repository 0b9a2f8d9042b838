package measurement

import "time"

// Monitor measures one run of a point. A monitor is owned by one goroutine.
type Monitor interface {
	Start()
	// Stop ends the run and adds it to the point, false if it wasn't running
	Stop() bool
	IsRunning() bool
	Accrued() time.Duration
	// SetError counts the run as failed
	SetError()
}

var (
	_ Monitor = (*timer)(nil)
	_ Monitor = (*nullMonitor)(nil)
)

type timer struct {
	point   *Point
	start   time.Time
	accrued time.Duration
	running bool
}

func (m *timer) Start() {
	m.start = time.Now()
	m.running = true
	m.point.started()
}

func (m *timer) Stop() bool {
	if !m.running {
		return false
	}
	m.accrued += time.Since(m.start)
	m.running = false
	m.point.stopped(m.accrued)
	return true
}

func (m *timer) IsRunning() bool {
	return m.running
}

func (m *timer) Accrued() time.Duration {
	return m.accrued
}

func (m *timer) SetError() {
	m.point.failed()
}

type nullMonitor struct {
	running bool
}

func (m *nullMonitor) Start() {
	m.running = true
}

func (m *nullMonitor) Stop() bool {
	r := m.running
	m.running = false
	return r
}

func (m *nullMonitor) IsRunning() bool {
	return m.running
}

func (m *nullMonitor) Accrued() time.Duration {
	return 0
}

func (m *nullMonitor) SetError() {}
