// Package ros bridges odometry to ROS: it subscribes to speed and steering topics, publishes
// odometry and tf, and replays recorded rosbags.
package ros

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/bluenviron/goroslib/v2"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/nav_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/tf2_msgs"
	"github.com/pkg/errors"

	"go.viam.com/ackermann/components/speedsensor"
	"go.viam.com/ackermann/components/steering"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
)

// NodeConfig configures the ROS node.
type NodeConfig struct {
	MasterAddress string
	Name          string
	Host          string
}

// Node is a ROS node plus the topics opened on it. Closing the node closes them all.
type Node struct {
	node   *goroslib.Node
	logger logging.Logger

	mu      sync.Mutex
	closers []func()
}

// NewNode registers a node with the ROS master.
func NewNode(conf NodeConfig, logger logging.Logger) (*Node, error) {
	n, err := goroslib.NewNode(goroslib.NodeConf{
		Name:          conf.Name,
		MasterAddress: conf.MasterAddress,
		Host:          conf.Host,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to ros master at %s", conf.MasterAddress)
	}
	logger.Infow("ros node started", "name", conf.Name, "master", conf.MasterAddress)
	return &Node{node: n, logger: logger}, nil
}

func (n *Node) addCloser(f func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closers = append(n.closers, f)
}

// Close closes every topic then the node.
func (n *Node) Close() {
	n.mu.Lock()
	closers := n.closers
	n.closers = nil
	n.mu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	n.node.Close()
}

// SpeedSubscriber is a SpeedSensor fed by std_msgs/Float64 messages. Float64 carries no header,
// so each message is stamped with the local clock on arrival.
type SpeedSubscriber struct {
	clock    clock.Clock
	readings *speedsensor.Broadcaster
	logger   logging.Logger
	closed   atomic.Bool
}

func newSpeedSubscriber(clk clock.Clock, logger logging.Logger) *SpeedSubscriber {
	if clk == nil {
		clk = clock.New()
	}
	return &SpeedSubscriber{clock: clk, readings: speedsensor.NewBroadcaster(), logger: logger}
}

// SubscribeSpeed subscribes to topic and returns the resulting SpeedSensor.
func (n *Node) SubscribeSpeed(topic string, clk clock.Clock) (*SpeedSubscriber, error) {
	s := newSpeedSubscriber(clk, n.logger.Sublogger("speed"))
	sub, err := goroslib.NewSubscriber(goroslib.SubscriberConf{
		Node:     n.node,
		Topic:    topic,
		Callback: s.onMessage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribing to %s", topic)
	}
	n.addCloser(func() { sub.Close() })
	n.logger.Infow("subscribed", "topic", topic)
	return s, nil
}

func (s *SpeedSubscriber) onMessage(msg *std_msgs.Float64) {
	reading := speedsensor.Reading{Speed: msg.Data, Time: s.clock.Now()}
	if dropped := s.readings.Publish(reading); dropped > 0 {
		s.logger.Warnw("speed subscriber too slow, reading dropped", "dropped", dropped)
	}
}

// LinearSpeed returns the latest message received.
func (s *SpeedSubscriber) LinearSpeed(ctx context.Context, extra map[string]interface{}) (speedsensor.Reading, error) {
	return s.readings.Latest()
}

// Stream delivers every message received after the call.
func (s *SpeedSubscriber) Stream(ctx context.Context) <-chan speedsensor.Reading {
	return s.readings.Subscribe(ctx)
}

// Close ends all streams. The ROS subscription itself is closed with the node.
func (s *SpeedSubscriber) Close(ctx context.Context) error {
	if s.closed.CompareAndSwap(false, true) {
		s.readings.Close()
	}
	return nil
}

// SubscribeSteering subscribes to a std_msgs/Float64 topic carrying the steering angle in radians.
func (n *Node) SubscribeSteering(topic string) (*steering.Cached, error) {
	cached := &steering.Cached{}
	sub, err := goroslib.NewSubscriber(goroslib.SubscriberConf{
		Node:  n.node,
		Topic: topic,
		Callback: func(msg *std_msgs.Float64) {
			cached.Update(msg.Data)
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "subscribing to %s", topic)
	}
	n.addCloser(func() { sub.Close() })
	n.logger.Infow("subscribed", "topic", topic)
	return cached, nil
}

// OdomPublisher publishes every step as nav_msgs/Odometry and, unless disabled, as a tf
// transform. It implements odometry.Publisher.
type OdomPublisher struct {
	writeOdom func(*nav_msgs.Odometry)
	writeTF   func(*tf2_msgs.TFMessage)
	seq       atomic.Uint32
}

// PublishOdometry advertises odomTopic and, when tfTopic is not empty, tfTopic.
func (n *Node) PublishOdometry(odomTopic, tfTopic string) (*OdomPublisher, error) {
	odomPub, err := goroslib.NewPublisher(goroslib.PublisherConf{
		Node:  n.node,
		Topic: odomTopic,
		Msg:   &nav_msgs.Odometry{},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "advertising %s", odomTopic)
	}
	n.addCloser(func() { odomPub.Close() })
	p := &OdomPublisher{writeOdom: func(m *nav_msgs.Odometry) { odomPub.Write(m) }}
	n.logger.Infow("advertised", "topic", odomTopic)

	if tfTopic != "" {
		tfPub, err := goroslib.NewPublisher(goroslib.PublisherConf{
			Node:  n.node,
			Topic: tfTopic,
			Msg:   &tf2_msgs.TFMessage{},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "advertising %s", tfTopic)
		}
		n.addCloser(func() { tfPub.Close() })
		p.writeTF = func(m *tf2_msgs.TFMessage) { tfPub.Write(m) }
		n.logger.Infow("advertised", "topic", tfTopic)
	}
	return p, nil
}

// Publish writes the step's transform then its odometry, in that order, like a tf broadcaster
// followed by an odometry publisher.
func (p *OdomPublisher) Publish(ctx context.Context, result odometry.StepResult) error {
	seq := p.seq.Add(1) - 1
	if p.writeTF != nil {
		p.writeTF(TransformMessage(result.Transform, seq))
	}
	p.writeOdom(OdometryMessage(result.Pose, seq))
	return nil
}
