package measurement

import (
	"sync"
	"time"
)

type Point struct {
	name     string
	measured bool

	lock                     sync.Mutex
	min, max, average, total time.Duration
	errors, count            int
	active, maxActive        int
}

func NewPoint(name string, measured bool) *Point {
	return &Point{
		name:     name,
		measured: measured,
	}
}

func (p *Point) Name() string {
	return p.name
}

func (p *Point) Reset() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.min, p.max, p.average, p.total = 0, 0, 0, 0
	p.errors, p.count = 0, 0
	p.maxActive = p.active
}

// Monitor a new monitor of this point, not started yet
func (p *Point) Monitor() Monitor {
	if p.measured {
		return &timer{point: p}
	}
	return &nullMonitor{}
}

func (p *Point) started() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.active++
	p.maxActive = max(p.maxActive, p.active)
}

func (p *Point) stopped(d time.Duration) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.active > 0 {
		p.active--
	}
	p.count++
	p.total += d
	p.average = p.total / time.Duration(p.count)
	p.max = max(p.max, d)
	if d < p.min || p.min == 0 {
		p.min = d
	}
}

func (p *Point) failed() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.errors++
}

func (p *Point) Active() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.active
}

func (p *Point) Data() Data {
	p.lock.Lock()
	defer p.lock.Unlock()
	return Data{
		Name:      p.name,
		Min:       p.min.Milliseconds(),
		Max:       p.max.Milliseconds(),
		Average:   p.average.Milliseconds(),
		Total:     p.total.Milliseconds(),
		Count:     p.count,
		Errors:    p.errors,
		Active:    p.active,
		MaxActive: p.maxActive,
	}
}
