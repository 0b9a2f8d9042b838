// Package camerafeed receives camera positions from a redis pub/sub channel
package camerafeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/willie68/go_tilefeed/internal/logging"
)

const DefaultTopic = "tilefeed:camera"

// ErrInvalidMessage the payload is no camera position
var ErrInvalidMessage = errors.New("invalid camera message")

type Config struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Addr     string `yaml:"addr" env:"ADDR" validate:"required_if=Enabled true"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB" validate:"gte=0"`
	Topic    string `yaml:"topic" env:"TOPIC"`
}

// CameraSetter receives the positions, implemented by the controller
type CameraSetter interface {
	SetCameraPosition(lat, lon, alt float64)
}

// CameraMessage the payload of a message on the topic
type CameraMessage struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
	Alt float64  `json:"alt"`
}

type Subscriber struct {
	log    *slog.Logger
	client *redis.Client
	topic  string
	target CameraSetter
}

// New connects to redis, the connection is checked with a ping
func New(cfg Config, target CameraSetter) (*Subscriber, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "failed to connect to redis %s", cfg.Addr)
	}
	return NewSubscriber(client, cfg.Topic, target), nil
}

func NewSubscriber(client *redis.Client, topic string, target CameraSetter) *Subscriber {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Subscriber{
		log:    logging.New("camerafeed"),
		client: client,
		topic:  topic,
		target: target,
	}
}

// Start listens on the topic until ctx is done
func (s *Subscriber) Start(ctx context.Context) error {
	s.log.Info("redis camera feed is running", "topic", s.topic)
	pubsub := s.client.Subscribe(ctx, s.topic)
	defer func() {
		if err := pubsub.Close(); err != nil {
			s.log.Warn("failed to close pubsub", "error", err)
		}
	}()

	msgCh := pubsub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				s.log.Warn("pubsub channel closed by redis")
				return nil
			}
			if err := s.handleMessage(ctx, msg); err != nil {
				s.log.Warn("error handling message", "error", err)
			}
		case <-ctx.Done():
			s.log.Info("shutting down redis camera feed")
			return nil
		}
	}
}

// Publish sends a camera position to the topic
func (s *Subscriber) Publish(ctx context.Context, lat, lon, alt float64) error {
	data, err := json.Marshal(CameraMessage{Lat: &lat, Lon: &lon, Alt: alt})
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, s.topic, data).Err()
}

func (s *Subscriber) Close() error {
	return s.client.Close()
}

func (s *Subscriber) handleMessage(_ context.Context, msg *redis.Message) error {
	var cm CameraMessage
	if err := json.Unmarshal([]byte(msg.Payload), &cm); err != nil {
		return errors.Wrapf(ErrInvalidMessage, "%v", err)
	}
	if cm.Lat == nil || cm.Lon == nil {
		return errors.Wrap(ErrInvalidMessage, "lat and lon are required")
	}
	if math.IsNaN(*cm.Lat) || math.IsNaN(*cm.Lon) {
		return errors.Wrap(ErrInvalidMessage, "lat/lon not a number")
	}
	s.log.Debug("camera position received", "lat", *cm.Lat, "lon", *cm.Lon, "alt", cm.Alt)
	s.target.SetCameraPosition(*cm.Lat, *cm.Lon, cm.Alt)
	return nil
}
