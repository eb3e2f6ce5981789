package experiment

import (
	"math/rand"
	"strings"
	"time"

	"github.com/scylladb/go-set/iset"

	"github.com/gzhole/memscope/internal/model"
)

// testEnvDir prefixes every synthesized and extracted file path.
const testEnvDir = "malware_test_environment/"

var (
	// indicatorFiles are the files the test malware drops; their names in a
	// recovered command line mean the file was created.
	indicatorFiles = []string{
		"suspicious_encrypted.dat", "temp_credentials.txt", "stolen_data.bin",
		"keylogger_output.log", "backdoor_config.cfg",
	}

	copyFiles = []string{"copy_suspicious_encrypted.dat", "copy_temp_credentials.txt"}

	groundTruthFiles = append(append([]string{}, indicatorFiles...),
		"customer.xls", "financial_data.xlsx", "secret_document.pdf")

	activityPorts = iset.New(8080, 4444, 5555, 6666)
)

// GroundTruth synthesizes total file-activity events split evenly across
// the five activities. File names are drawn from rng.
func GroundTruth(total int, rng *rand.Rand, now time.Time) []model.Event {
	perActivity := total / len(model.Activities)
	ts := now.UTC().Format(time.RFC3339)
	events := make([]model.Event, 0, perActivity*len(model.Activities))

	for _, activity := range model.Activities {
		for i := 0; i < perActivity; i++ {
			name := groundTruthFiles[rng.Intn(len(groundTruthFiles))]
			src := testEnvDir + name
			var e model.Event
			switch activity {
			case model.ActivityCopied:
				e = model.FileEvent(activity, src, testEnvDir+"copy_"+name)
			case model.ActivityRenamed:
				e = model.FileEvent(activity, src, testEnvDir+strings.ReplaceAll(name, ".", "_renamed."))
			case model.ActivityDeleted:
				e = model.FileEvent(activity, src, "")
			default:
				e = model.FileEvent(activity, src, src)
			}
			e["timestamp"] = ts
			events = append(events, e)
		}
	}
	return events
}

// ExtractEvents derives detected events from what an analysis recovered:
// indicator file names in process command lines and connections bound to
// known implant ports.
func ExtractEvents(res *model.AnalysisResult, now time.Time) []model.Event {
	if res == nil {
		return nil
	}
	ts := now.UTC().Format(time.RFC3339)
	cmdlines := make([]string, 0, len(res.Processes))
	for _, p := range res.Processes {
		cmdlines = append(cmdlines, strings.ToLower(p.CommandLine))
	}
	seen := func(token string) bool {
		token = strings.ToLower(token)
		for _, c := range cmdlines {
			if strings.Contains(c, token) {
				return true
			}
		}
		return false
	}
	stamp := func(e model.Event) model.Event {
		e["timestamp"] = ts
		return e
	}

	var events []model.Event
	for _, f := range indicatorFiles {
		if seen(f) {
			events = append(events, stamp(model.Event{
				"type":        model.EventFileActivity,
				"activity":    model.ActivityCreated,
				"source_file": testEnvDir + f,
			}))
		}
	}
	for _, f := range copyFiles {
		if seen(f) {
			events = append(events, stamp(model.FileEvent(model.ActivityCopied,
				testEnvDir+strings.TrimPrefix(f, "copy_"), testEnvDir+f)))
		}
	}
	if seen("hidden_file") {
		events = append(events, stamp(model.FileEvent(model.ActivityRenamed,
			testEnvDir+indicatorFiles[0], testEnvDir+"hidden_file.dat")))
	}
	for _, f := range indicatorFiles {
		if seen(f) {
			// one modification at most, attributed to the first indicator
			events = append(events, stamp(model.Event{
				"type":        model.EventFileActivity,
				"activity":    model.ActivityModified,
				"source_file": testEnvDir + indicatorFiles[0],
			}))
			break
		}
	}

	for _, c := range res.NetworkConnections {
		if activityPorts.Has(c.LocalPort) {
			proto := c.Protocol
			if proto == "" {
				proto = "tcp"
			}
			events = append(events, model.Event{
				"type":     model.EventNetworkActivity,
				"port":     c.LocalPort,
				"protocol": proto,
			})
		}
	}
	return events
}

// bucketFor names the per-type bucket an extracted event is counted in:
// file events by activity, everything else by type.
func bucketFor(e model.Event) string {
	if e.Type() == model.EventFileActivity {
		if a := e.Activity(); a != "" {
			return a
		}
		return "unknown"
	}
	if t := e.Type(); t != "" {
		return t
	}
	return "unknown"
}
