// Package cli contains the ackermann command line tool: rosbag replay, capture inspection and
// config validation.
package cli

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/ackermann/config"
	"go.viam.com/ackermann/data"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/ros"
	"go.viam.com/ackermann/serial"
)

const (
	flagDebug         = "debug"
	flagBag           = "bag"
	flagSpeedTopic    = "speed-topic"
	flagSteeringTopic = "steering-topic"
	flagWheelbase     = "wheelbase"
	flagCaptureDir    = "capture-dir"
	flagEvery         = "every"
	flagConfig        = "config"
	flagFile          = "file"
)

// NewApp returns the command line app writing to out.
func NewApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:            "ackermann",
		Usage:           "inspect and replay ackermann odometry",
		HideHelpCommand: true,
		Writer:          out,
		ErrWriter:       out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "replay",
				Usage:     "integrate the speed and steering topics of a rosbag",
				UsageText: "ackermann replay --bag <file> --wheelbase <m> [other options]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagBag, Required: true, Usage: "rosbag `FILE` to read"},
					&cli.Float64Flag{Name: flagWheelbase, Required: true, Usage: "wheelbase in meters"},
					&cli.StringFlag{Name: flagSpeedTopic, Value: config.DefaultSpeedTopic, Usage: "std_msgs/Float64 speed topic"},
					&cli.StringFlag{
						Name:  flagSteeringTopic,
						Value: config.DefaultSteeringTopic,
						Usage: "std_msgs/Float64 steering angle topic, empty to drive straight",
					},
					&cli.StringFlag{Name: flagCaptureDir, Usage: "also capture every step to `DIR`"},
					&cli.IntFlag{Name: flagEvery, Value: 0, Usage: "print every Nth pose, 0 prints only the last"},
				},
				Action: ReplayAction,
			},
			{
				Name:            "capture",
				Usage:           "work with capture files",
				HideHelpCommand: true,
				Subcommands: []*cli.Command{
					{
						Name:   "print",
						Usage:  "print the records of a capture file",
						Flags:  []cli.Flag{&cli.StringFlag{Name: flagFile, Required: true, Usage: "capture `FILE`"}},
						Action: PrintCaptureAction,
					},
				},
			},
			{
				Name:   "validate",
				Usage:  "validate an odometry config file",
				Flags:  []cli.Flag{&cli.StringFlag{Name: flagConfig, Aliases: []string{"c"}, Required: true, Usage: "config `FILE`"}},
				Action: ValidateConfigAction,
			},
			{
				Name:   "ports",
				Usage:  "list serial ports",
				Action: ListPortsAction,
			},
		},
	}
}

func loggerFor(c *cli.Context) logging.Logger {
	if c.Bool(flagDebug) {
		return logging.NewDebugLogger("cli")
	}
	return logging.NewLogger("cli")
}

// ReplayAction reads a rosbag and prints the resulting poses.
func ReplayAction(c *cli.Context) (err error) {
	logger := loggerFor(c)
	rb, err := ros.ReadBag(c.String(flagBag))
	if err != nil {
		return err
	}
	samples, err := ros.ReplaySamples(rb, c.String(flagSpeedTopic), c.String(flagSteeringTopic))
	if err != nil {
		return err
	}
	logger.Infow("replaying", "bag", c.String(flagBag), "samples", len(samples))

	var publishers []odometry.Publisher
	if dir := c.String(flagCaptureDir); dir != "" {
		w, wErr := data.NewCaptureWriter(dir, 0, logger)
		if wErr != nil {
			return wErr
		}
		defer func() {
			err = multierr.Combine(err, w.Close())
		}()
		publishers = append(publishers, w)
	}
	params := odometry.VehicleParameters{Wheelbase: c.Float64(flagWheelbase)}
	return Replay(c.Context, samples, params, c.Int(flagEvery), c.App.Writer, publishers...)
}

// Replay integrates samples in order, hands each step to publishers and prints poses to out.
func Replay(
	ctx context.Context,
	samples []odometry.Sample,
	params odometry.VehicleParameters,
	every int,
	out io.Writer,
	publishers ...odometry.Publisher,
) error {
	if len(samples) == 0 {
		return errors.New("nothing to replay")
	}
	integrator, err := odometry.NewIntegrator(params)
	if err != nil {
		return err
	}
	emitter := odometry.NewEmitter("", "")
	var warnings int
	var state odometry.State
	speeds := make([]float64, 0, len(samples))
	for i, sample := range samples {
		speeds = append(speeds, math.Abs(sample.Speed))
		var warning error
		state, warning = integrator.Update(sample)
		if warning != nil {
			warnings++
		}
		pose, tf := emitter.Emit(state)
		result := odometry.StepResult{Sample: sample, State: state, Pose: pose, Transform: tf, Warning: warning}
		for _, p := range publishers {
			if err := p.Publish(ctx, result); err != nil {
				return errors.Wrapf(err, "publishing step %d", i)
			}
		}
		if every > 0 && i%every == 0 {
			printState(out, state)
		}
	}
	printState(out, state)
	mean, err := stats.Mean(speeds)
	if err != nil {
		return err
	}
	peak, err := stats.Max(speeds)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d samples, %d warnings, mean speed %.3f m/s, max speed %.3f m/s\n",
		len(samples), warnings, mean, peak)
	return err
}

func printState(out io.Writer, s odometry.State) {
	//nolint:errcheck
	fmt.Fprintf(out, "%s x=%.4f y=%.4f heading=%.4f (%.1f deg) v=%.4f w=%.4f\n",
		s.Time.UTC().Format("15:04:05.000"), s.X, s.Y, s.Heading, s.Heading*180/math.Pi, s.LinearX, s.AngularVelocity)
}

// PrintCaptureAction prints a capture file as a table. Records read before a decode error are
// still printed.
func PrintCaptureAction(c *cli.Context) error {
	records, err := data.ReadCaptureFile(c.String(flagFile))
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Seq", "Time", "Frames", "X", "Y", "Heading", "V", "W", "Warning"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Seq,
			rec.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
			rec.ReferenceFrame + "->" + rec.BodyFrame,
			fmt.Sprintf("%.4f", rec.X),
			fmt.Sprintf("%.4f", rec.Y),
			fmt.Sprintf("%.4f", rec.Heading),
			fmt.Sprintf("%.4f", rec.LinearX),
			fmt.Sprintf("%.4f", rec.AngularZ),
			rec.Warning,
		})
	}
	//nolint:errcheck
	fmt.Fprintln(c.App.Writer, t.Render())
	return err
}

// ValidateConfigAction reads and validates a config file.
func ValidateConfigAction(c *cli.Context) error {
	cfg, err := config.Read(c.Context, c.String(flagConfig), loggerFor(c))
	if err != nil {
		return err
	}
	//nolint:errcheck
	fmt.Fprintf(c.App.Writer, "%s is valid: speed from %s, steering from %s, wheelbase %.3f m\n",
		c.String(flagConfig), cfg.Speed.Source, cfg.Steering.Source, cfg.Vehicle.WheelbaseM)
	return nil
}

// ListPortsAction prints the serial ports found on this machine.
func ListPortsAction(c *cli.Context) error {
	ports, err := serial.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		//nolint:errcheck
		fmt.Fprintln(c.App.Writer, "no serial ports found")
	}
	for _, p := range ports {
		//nolint:errcheck
		fmt.Fprintln(c.App.Writer, p)
	}
	return nil
}
