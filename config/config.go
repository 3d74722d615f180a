// Package config defines the on-disk configuration of the odometry node.
package config

import (
	"net"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/serial"
	rutils "go.viam.com/ackermann/utils"
)

// Sources a speed or steering reading can come from.
const (
	SourceSerial = "serial"
	SourceROS    = "ros"
	SourceFake   = "fake"
)

// Defaults matching the node this replaces.
const (
	DefaultNodeName      = "odom_node"
	DefaultSpeedTopic    = "/odom_node/odom_linear"
	DefaultSteeringTopic = "/odom_node/steering_angle"
	DefaultOdomTopic     = "/odom_node/odom"
	DefaultTFTopic       = "/tf"
	DefaultMasterAddress = "127.0.0.1:11311"
	// DefaultBindAddress is the default address the status API listens on.
	DefaultBindAddress = "localhost:8080"
	// DefaultCaptureMaxSizeMB is the size at which capture files rotate.
	DefaultCaptureMaxSizeMB = 64
	// DefaultServoCenterDeg is the servo position for wheels pointing straight ahead.
	DefaultServoCenterDeg = 90
)

// Config describes how to build and run the odometry node.
type Config struct {
	Debug     bool                          `json:"debug,omitempty"`
	LogConfig []logging.LoggerPatternConfig `json:"log,omitempty"`

	Vehicle  VehicleConfig  `json:"vehicle"`
	Frames   FramesConfig   `json:"frames,omitempty"`
	Speed    SpeedConfig    `json:"speed"`
	Steering SteeringConfig `json:"steering"`

	ROS       *ROSConfig     `json:"ros,omitempty"`
	Capture   *CaptureConfig `json:"capture,omitempty"`
	Web       *WebConfig     `json:"web,omitempty"`
	GeoOrigin *GeoPoint      `json:"geo_origin,omitempty"`

	ConfigFilePath string `json:"-"`
}

// Ensure ensures all parts of the config are valid and fills in defaults. All problems are
// reported together.
func (c *Config) Ensure() error {
	var errs error
	errs = multierr.Append(errs, c.Vehicle.Validate("vehicle"))
	c.Frames.applyDefaults()
	errs = multierr.Append(errs, c.Speed.Validate("speed"))
	errs = multierr.Append(errs, c.Steering.Validate("steering"))

	if c.ROS == nil && c.NeedsROS() {
		c.ROS = &ROSConfig{}
	}
	if c.ROS != nil {
		errs = multierr.Append(errs, c.ROS.Validate("ros"))
	}
	if c.Capture != nil {
		errs = multierr.Append(errs, c.Capture.Validate("capture"))
	}
	if c.Web != nil {
		errs = multierr.Append(errs, c.Web.Validate("web"))
	}
	if c.GeoOrigin != nil {
		errs = multierr.Append(errs, c.GeoOrigin.Validate("geo_origin"))
	}
	for idx, lc := range c.LogConfig {
		if !logging.ValidatePattern(lc.Pattern) {
			errs = multierr.Append(errs, utils.NewConfigValidationError("log",
				errors.Errorf("entry %d has invalid pattern %q", idx, lc.Pattern)))
			continue
		}
		if _, err := logging.LevelFromString(lc.Level); err != nil {
			errs = multierr.Append(errs, utils.NewConfigValidationError("log", err))
		}
	}
	return errs
}

// NeedsROS reports whether any input is read from ROS topics.
func (c *Config) NeedsROS() bool {
	return c.Speed.Source == SourceROS || c.Steering.Source == SourceROS
}

// VehicleConfig holds the kinematic model and the pose odometry starts from.
type VehicleConfig struct {
	WheelbaseM  float64   `json:"wheelbase_m"`
	InitialPose *PoseSpec `json:"initial_pose,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (vc *VehicleConfig) Validate(path string) error {
	if vc.WheelbaseM == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "wheelbase_m")
	}
	if err := vc.Parameters().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if vc.InitialPose != nil && !rutils.IsFinite(vc.InitialPose.X, vc.InitialPose.Y, vc.InitialPose.Theta) {
		return utils.NewConfigValidationError(path, errors.New("initial_pose must be finite"))
	}
	return nil
}

// Parameters returns the vehicle parameters for the integrator.
func (vc *VehicleConfig) Parameters() odometry.VehicleParameters {
	return odometry.VehicleParameters{Wheelbase: vc.WheelbaseM}
}

// IntegratorOptions returns the integrator options implied by the config.
func (vc *VehicleConfig) IntegratorOptions() []odometry.Option {
	if vc.InitialPose == nil {
		return nil
	}
	return []odometry.Option{odometry.WithInitialPose(vc.InitialPose.X, vc.InitialPose.Y, vc.InitialPose.Theta)}
}

// PoseSpec is a planar pose: meters and radians.
type PoseSpec struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// FramesConfig names the frames poses are expressed in.
type FramesConfig struct {
	Reference string `json:"reference,omitempty"`
	Body      string `json:"body,omitempty"`
}

func (fc *FramesConfig) applyDefaults() {
	if fc.Reference == "" {
		fc.Reference = odometry.DefaultReferenceFrame
	}
	if fc.Body == "" {
		fc.Body = odometry.DefaultBodyFrame
	}
}

// SpeedConfig selects where forward speed readings come from.
type SpeedConfig struct {
	Source string         `json:"source"`
	Serial *serial.Config `json:"serial,omitempty"`
	Topic  string         `json:"topic,omitempty"`
	// Scale converts the raw reading to m/s. Zero means 1.
	Scale float64 `json:"scale,omitempty"`
	// FakeSpeed is the constant speed reported by the fake source, in m/s.
	FakeSpeed float64 `json:"fake_speed,omitempty"`
	// FakeRateHz is how often the fake source reports. Zero means 10.
	FakeRateHz float64 `json:"fake_rate_hz,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (sc *SpeedConfig) Validate(path string) error {
	if sc.Scale == 0 {
		sc.Scale = 1
	}
	if !rutils.IsFinite(sc.Scale, sc.FakeSpeed, sc.FakeRateHz) {
		return utils.NewConfigValidationError(path, errors.New("scale, fake_speed and fake_rate_hz must be finite"))
	}
	switch sc.Source {
	case SourceSerial:
		if sc.Serial == nil {
			return utils.NewConfigValidationFieldRequiredError(path, "serial")
		}
		return sc.Serial.Validate(path + ".serial")
	case SourceROS:
		if sc.Topic == "" {
			sc.Topic = DefaultSpeedTopic
		}
	case SourceFake:
		if sc.FakeRateHz == 0 {
			sc.FakeRateHz = 10
		}
		if sc.FakeRateHz < 0 {
			return utils.NewConfigValidationError(path, errors.New("fake_rate_hz must be positive"))
		}
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "source")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown source %q", sc.Source))
	}
	return nil
}

// SteeringConfig selects where the steering angle comes from and how servo degrees map to it.
type SteeringConfig struct {
	Source string         `json:"source"`
	Serial *serial.Config `json:"serial,omitempty"`
	Topic  string         `json:"topic,omitempty"`

	// CenterDeg is the servo position for straight ahead. Nil means 90.
	CenterDeg *float64 `json:"center_deg,omitempty"`
	// Invert flips the sign, for servos mounted so that increasing degrees turn right.
	Invert bool `json:"invert,omitempty"`
	// LimitDeg clamps the steering angle magnitude. Zero disables clamping.
	LimitDeg float64 `json:"limit_deg,omitempty"`
	// FakeAngleDeg is the constant steering angle reported by the fake source.
	FakeAngleDeg float64 `json:"fake_angle_deg,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (sc *SteeringConfig) Validate(path string) error {
	if sc.CenterDeg == nil {
		center := float64(DefaultServoCenterDeg)
		sc.CenterDeg = &center
	}
	if sc.LimitDeg < 0 || sc.LimitDeg >= 90 {
		return utils.NewConfigValidationError(path, errors.Errorf("limit_deg must be in [0, 90), got %v", sc.LimitDeg))
	}
	if !rutils.IsFinite(*sc.CenterDeg, sc.FakeAngleDeg) {
		return utils.NewConfigValidationError(path, errors.New("center_deg and fake_angle_deg must be finite"))
	}
	switch sc.Source {
	case SourceSerial:
		if sc.Serial == nil {
			return utils.NewConfigValidationFieldRequiredError(path, "serial")
		}
		return sc.Serial.Validate(path + ".serial")
	case SourceROS:
		if sc.Topic == "" {
			sc.Topic = DefaultSteeringTopic
		}
	case SourceFake:
	case "":
		return utils.NewConfigValidationFieldRequiredError(path, "source")
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown source %q", sc.Source))
	}
	return nil
}

// ROSConfig describes the ROS node odometry is published from.
type ROSConfig struct {
	MasterAddress string `json:"master_address,omitempty"`
	NodeName      string `json:"node_name,omitempty"`
	// Host is the address other nodes use to reach this one. Empty lets the library pick.
	Host string `json:"host,omitempty"`

	OdomTopic string `json:"odom_topic,omitempty"`
	TFTopic   string `json:"tf_topic,omitempty"`
	DisableTF bool   `json:"disable_tf,omitempty"`
	// NoPublish subscribes to inputs without advertising odometry.
	NoPublish bool `json:"no_publish,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (rc *ROSConfig) Validate(path string) error {
	if rc.MasterAddress == "" {
		rc.MasterAddress = DefaultMasterAddress
	}
	if rc.NodeName == "" {
		rc.NodeName = DefaultNodeName
	}
	if rc.OdomTopic == "" {
		rc.OdomTopic = DefaultOdomTopic
	}
	if rc.TFTopic == "" {
		rc.TFTopic = DefaultTFTopic
	}
	if _, _, err := net.SplitHostPort(rc.MasterAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating master_address"))
	}
	return nil
}

// CaptureConfig enables recording every step to disk.
type CaptureConfig struct {
	Dir       string `json:"dir"`
	MaxSizeMB int    `json:"max_size_mb,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cc *CaptureConfig) Validate(path string) error {
	if cc.Dir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "dir")
	}
	if cc.MaxSizeMB == 0 {
		cc.MaxSizeMB = DefaultCaptureMaxSizeMB
	}
	if cc.MaxSizeMB < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_size_mb cannot be negative"))
	}
	return nil
}

// WebConfig enables the HTTP status API.
type WebConfig struct {
	BindAddress string   `json:"bind_address,omitempty"`
	CORSOrigins []string `json:"cors_origins,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (wc *WebConfig) Validate(path string) error {
	if wc.BindAddress == "" {
		wc.BindAddress = DefaultBindAddress
	}
	if _, _, err := net.SplitHostPort(wc.BindAddress); err != nil {
		return utils.NewConfigValidationError(path, errors.Wrap(err, "error validating bind_address"))
	}
	return nil
}

// GeoPoint is the latitude and longitude of the odometry origin, in degrees.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate ensures all parts of the config are valid.
func (gp *GeoPoint) Validate(path string) error {
	if !rutils.IsFinite(gp.Latitude, gp.Longitude) || gp.Latitude < -90 || gp.Latitude > 90 ||
		gp.Longitude < -180 || gp.Longitude > 180 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid coordinates (%v, %v)", gp.Latitude, gp.Longitude))
	}
	return nil
}
