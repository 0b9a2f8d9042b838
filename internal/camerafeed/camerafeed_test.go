package camerafeed

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type cameraMock struct {
	positions [][3]float64
}

func (c *cameraMock) SetCameraPosition(lat, lon, alt float64) {
	c.positions = append(c.positions, [3]float64{lat, lon, alt})
}

func newTestSubscriber(target CameraSetter) *Subscriber {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	return NewSubscriber(client, "", target)
}

func TestHandleMessage(t *testing.T) {
	ast := assert.New(t)
	cam := &cameraMock{}
	s := newTestSubscriber(cam)
	defer s.Close()
	ast.Equal(DefaultTopic, s.topic)

	err := s.handleMessage(t.Context(), &redis.Message{Channel: DefaultTopic, Payload: `{"lat": 48.8606, "lon": 2.2960, "alt": 5}`})
	ast.NoError(err)
	err = s.handleMessage(t.Context(), &redis.Message{Channel: DefaultTopic, Payload: `{"lat": 0, "lon": 0}`})
	ast.NoError(err)
	ast.Equal([][3]float64{{48.8606, 2.2960, 5}, {0, 0, 0}}, cam.positions)
}

func TestHandleInvalidMessage(t *testing.T) {
	ast := assert.New(t)
	cam := &cameraMock{}
	s := newTestSubscriber(cam)
	defer s.Close()

	for _, payload := range []string{
		`nope`,
		`{"lat": 48.8606}`,
		`{"lon": 2.2960, "alt": 5}`,
		`[]`,
	} {
		err := s.handleMessage(t.Context(), &redis.Message{Payload: payload})
		ast.ErrorIs(err, ErrInvalidMessage, payload)
	}
	ast.Empty(cam.positions)
}

func TestStartStopsOnCancel(t *testing.T) {
	ast := assert.New(t)
	s := newTestSubscriber(&cameraMock{})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Start(ctx)
	}()
	cancel()
	select {
	case err := <-done:
		ast.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber didn't stop")
	}
}

func TestNewFailsWithoutRedis(t *testing.T) {
	ast := assert.New(t)
	_, err := New(Config{Addr: "127.0.0.1:1"}, &cameraMock{})
	ast.Error(err)
}
