// Package measurement collects in process timings of named points, e.g. the
// duration of a fetch cycle of the controller.
package measurement

import (
	"slices"
	"strings"
	"sync"
)

type Service struct {
	active bool
	lock   sync.Mutex
	points map[string]*Point
}

// Data the statistics of one point, durations in milliseconds
type Data struct {
	Name      string `json:"name"`
	Min       int64  `json:"min"`
	Max       int64  `json:"max"`
	Average   int64  `json:"average"`
	Total     int64  `json:"total"`
	Count     int    `json:"count"`
	Errors    int    `json:"errors"`
	Active    int    `json:"active"`
	MaxActive int    `json:"maxActive"`
}

// New creates the service, an inactive service hands out monitors which
// measure nothing
func New(active bool) *Service {
	return &Service{
		active: active,
		points: make(map[string]*Point),
	}
}

func (s *Service) Active() bool {
	return s.active
}

// Start starts a new monitor on the named point
func (s *Service) Start(name string) Monitor {
	m := s.Point(name).Monitor()
	m.Start()
	return m
}

// Point the named point, created on first use
func (s *Service) Point(name string) *Point {
	s.lock.Lock()
	defer s.lock.Unlock()
	p, ok := s.points[name]
	if !ok {
		p = NewPoint(name, s.active)
		s.points[name] = p
	}
	return p
}

// Datas the data of all points sorted by name
func (s *Service) Datas() []Data {
	s.lock.Lock()
	datas := make([]Data, 0, len(s.points))
	for _, v := range s.points {
		datas = append(datas, v.Data())
	}
	s.lock.Unlock()
	slices.SortFunc(datas, func(d1, d2 Data) int {
		return strings.Compare(d1.Name, d2.Name)
	})
	return datas
}

// Reset clears the statistics of all points
func (s *Service) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, v := range s.points {
		v.Reset()
	}
}
