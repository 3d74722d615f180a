package server

import (
	"context"

	"github.com/benbjohnson/clock"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/ackermann/components/movementsensor/ackermann"
	"go.viam.com/ackermann/components/servo"
	servoserial "go.viam.com/ackermann/components/servo/serial"
	"go.viam.com/ackermann/components/speedsensor"
	speedfake "go.viam.com/ackermann/components/speedsensor/fake"
	speedserial "go.viam.com/ackermann/components/speedsensor/serial"
	"go.viam.com/ackermann/components/steering"
	"go.viam.com/ackermann/config"
	"go.viam.com/ackermann/data"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/ros"
	"go.viam.com/ackermann/spatialmath"
	"go.viam.com/ackermann/utils"
	"go.viam.com/ackermann/web"
)

// odometryNode is everything built from one config: input sources, the odometry sensor and its
// outputs.
type odometryNode struct {
	sensor  *ackermann.Sensor
	speed   speedsensor.SpeedSensor
	servo   servo.Servo
	rosNode *ros.Node
	capture *data.CaptureWriter
	web     *web.Server
	logger  logging.Logger
}

func newOdometryNode(ctx context.Context, cfg *config.Config, clk clock.Clock, logger logging.Logger) (*odometryNode, error) {
	n := &odometryNode{logger: logger}
	if err := n.build(cfg, clk); err != nil {
		return nil, multierr.Combine(err, n.Close(ctx))
	}
	return n, nil
}

func (n *odometryNode) build(cfg *config.Config, clk clock.Clock) error {
	logger := n.logger
	var err error
	if cfg.ROS != nil {
		n.rosNode, err = ros.NewNode(ros.NodeConfig{
			MasterAddress: cfg.ROS.MasterAddress,
			Name:          cfg.ROS.NodeName,
			Host:          cfg.ROS.Host,
		}, logger.Sublogger("ros"))
		if err != nil {
			return err
		}
	}

	if n.speed, err = n.newSpeedSensor(cfg, clk); err != nil {
		return errors.Wrap(err, "building speed source")
	}
	steer, err := n.newSteeringSensor(cfg)
	if err != nil {
		return errors.Wrap(err, "building steering source")
	}

	var publishers []odometry.Publisher
	if cfg.ROS != nil && !cfg.ROS.NoPublish {
		tfTopic := cfg.ROS.TFTopic
		if cfg.ROS.DisableTF {
			tfTopic = ""
		}
		pub, err := n.rosNode.PublishOdometry(cfg.ROS.OdomTopic, tfTopic)
		if err != nil {
			return err
		}
		publishers = append(publishers, pub)
	}
	if cfg.Capture != nil {
		if n.capture, err = data.NewCaptureWriter(cfg.Capture.Dir, cfg.Capture.MaxSizeMB, logger.Sublogger("capture")); err != nil {
			return err
		}
		publishers = append(publishers, n.capture)
	}
	publishers = append(publishers, debugPublisher(logger.Sublogger("odom")))

	sensorCfg := ackermann.Config{
		Parameters:     cfg.Vehicle.Parameters(),
		ReferenceFrame: cfg.Frames.Reference,
		BodyFrame:      cfg.Frames.Body,
	}
	if p := cfg.Vehicle.InitialPose; p != nil {
		sensorCfg.InitialPose = spatialmath.NewPlanarPose(p.X, p.Y, p.Theta)
	}
	if g := cfg.GeoOrigin; g != nil {
		sensorCfg.GeoOrigin = geo.NewPoint(g.Latitude, g.Longitude)
	}
	if n.sensor, err = ackermann.NewSensor(sensorCfg, n.speed, steer, logger, publishers...); err != nil {
		return err
	}

	if cfg.Web != nil {
		n.web = web.NewServer(n.sensor, web.Options{
			BindAddress: cfg.Web.BindAddress,
			CORSOrigins: cfg.Web.CORSOrigins,
		}, logger.Sublogger("web"))
	}
	return nil
}

func (n *odometryNode) newSpeedSensor(cfg *config.Config, clk clock.Clock) (speedsensor.SpeedSensor, error) {
	logger := n.logger.Sublogger("speed")
	switch cfg.Speed.Source {
	case config.SourceSerial:
		s, err := speedserial.NewSerialSpeedSensor(cfg.Speed.Serial, cfg.Speed.Scale, clk, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourceROS:
		s, err := n.rosNode.SubscribeSpeed(cfg.Speed.Topic, clk)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SourceFake:
		return speedfake.NewSpeedSensor(cfg.Speed.FakeSpeed*cfg.Speed.Scale, cfg.Speed.FakeRateHz, clk, logger), nil
	default:
		return nil, errors.Errorf("unknown speed source %q", cfg.Speed.Source)
	}
}

func (n *odometryNode) newSteeringSensor(cfg *config.Config) (steering.Sensor, error) {
	sc := cfg.Steering
	switch sc.Source {
	case config.SourceSerial:
		s, err := servoserial.NewSerialServo(sc.Serial, n.logger.Sublogger("servo"))
		if err != nil {
			return nil, err
		}
		n.servo = s
		ss, err := steering.NewServoSteering(s, *sc.CenterDeg, sc.Invert, sc.LimitDeg)
		if err != nil {
			return nil, err
		}
		return ss, nil
	case config.SourceROS:
		cached, err := n.rosNode.SubscribeSteering(sc.Topic)
		if err != nil {
			return nil, err
		}
		return cached, nil
	case config.SourceFake:
		return steering.NewFixed(utils.DegToRad(sc.FakeAngleDeg)), nil
	default:
		return nil, errors.Errorf("unknown steering source %q", sc.Source)
	}
}

func debugPublisher(logger logging.Logger) odometry.Publisher {
	return odometry.PublisherFunc(func(ctx context.Context, r odometry.StepResult) error {
		logger.Debugw("odometry",
			"x", r.State.X, "y", r.State.Y, "heading", r.State.Heading,
			"linear_x", r.State.LinearX, "angular_z", r.State.AngularVelocity,
			"time", r.State.Time)
		return nil
	})
}

// Close stops the sensor first so no step is published into closed outputs.
func (n *odometryNode) Close(ctx context.Context) error {
	var err error
	if n.sensor != nil {
		err = multierr.Combine(err, n.sensor.Close(ctx))
	}
	if n.speed != nil {
		err = multierr.Combine(err, n.speed.Close(ctx))
	}
	if n.servo != nil {
		err = multierr.Combine(err, n.servo.Close(ctx))
	}
	if n.capture != nil {
		err = multierr.Combine(err, n.capture.Close())
	}
	if n.rosNode != nil {
		n.rosNode.Close()
	}
	return err
}
