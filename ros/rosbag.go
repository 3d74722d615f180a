package ros

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"sort"
	"time"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/ackermann/odometry"
)

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read ros bag")
	}
	return rb, nil
}

// TimedValue is a std_msgs/Float64 payload with the time it was recorded.
type TimedValue struct {
	Time  time.Time
	Value float64
}

type float64Message struct {
	Meta struct {
		Secs  int64
		Nsecs int64
	}
	Data struct {
		Data float64
	}
}

// Float64Messages returns every std_msgs/Float64 on each of topics, keyed by topic and sorted by
// record time. A topic missing from the bag maps to no values.
func Float64Messages(rb *rosbag.RosBag, topics ...string) (map[string][]TimedValue, error) {
	wanted := make(map[string]bool, len(topics))
	for _, topic := range topics {
		wanted[topic] = true
	}
	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(topic string) bool { return wanted[topic] },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	all := make(map[string][]TimedValue, len(topics))
	for _, topic := range topics {
		msgs := rb.TopicsAsJSON[topic]
		if msgs == nil {
			continue
		}
		values, err := decodeFloat64Messages(msgs)
		if err != nil {
			return nil, errors.Wrapf(err, "topic %s", topic)
		}
		all[topic] = values
	}
	return all, nil
}

func decodeFloat64Messages(msgs *bytes.Buffer) ([]TimedValue, error) {
	var values []TimedValue
	for {
		line, err := msgs.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var message float64Message
			if jsonErr := json.Unmarshal(line, &message); jsonErr != nil {
				return nil, jsonErr
			}
			values = append(values, TimedValue{
				Time:  time.Unix(message.Meta.Secs, message.Meta.Nsecs).UTC(),
				Value: message.Data.Data,
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
	}
	sort.SliceStable(values, func(i, j int) bool { return values[i].Time.Before(values[j].Time) })
	return values, nil
}

// MergeSamples pairs each speed value with the latest steering value recorded at or before it.
// Speeds recorded before the first steering value are paired with initialSteering.
func MergeSamples(speeds, steerings []TimedValue, initialSteering float64) []odometry.Sample {
	samples := make([]odometry.Sample, 0, len(speeds))
	angle := initialSteering
	next := 0
	for _, speed := range speeds {
		for next < len(steerings) && !steerings[next].Time.After(speed.Time) {
			angle = steerings[next].Value
			next++
		}
		samples = append(samples, odometry.Sample{Speed: speed.Value, SteeringAngle: angle, Time: speed.Time})
	}
	return samples
}

// ReplaySamples reads the speed and steering topics of a bag and merges them into samples in
// record order. An empty steeringTopic drives straight.
func ReplaySamples(rb *rosbag.RosBag, speedTopic, steeringTopic string) ([]odometry.Sample, error) {
	topics := []string{speedTopic}
	if steeringTopic != "" {
		topics = append(topics, steeringTopic)
	}
	values, err := Float64Messages(rb, topics...)
	if err != nil {
		return nil, err
	}
	if len(values[speedTopic]) == 0 {
		return nil, errors.Errorf("no messages for topic %s", speedTopic)
	}
	return MergeSamples(values[speedTopic], values[steeringTopic], 0), nil
}
