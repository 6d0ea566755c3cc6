package listener

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ChizhovVadim/tfplus/internal/ml"
)

// CSVOutput is one CSV file of a logs folder with a value column per label:
//
//	step,time,train,valid
//	100,2016-03-07T09:05:01Z,0.91,
type CSVOutput struct {
	Name     string
	Labels   []string
	Filename string

	folder string
	logs   *LogManager
	mu     sync.Mutex
	now    func() time.Time
	listed bool
}

func NewCSVOutput(logs *LogManager, name string, labels []string) *CSVOutput {
	return &CSVOutput{
		Name:     name,
		Labels:   labels,
		Filename: CSVFilename(name),
		folder:   logs.Folder(),
		logs:     logs,
		now:      time.Now,
	}
}

// CSVFilename turns "Step Time" into "step_time.csv".
func CSVFilename(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_") + ".csv"
}

func (o *CSVOutput) column(label string) int {
	for i, l := range o.Labels {
		if l == label {
			return i
		}
	}
	return -1
}

// Write appends a row with value in the column of label. The file is
// created with its header and registered in the catalog on first write.
func (o *CSVOutput) Write(step int, label string, value float64) error {
	var col = o.column(label)
	if col < 0 {
		return fmt.Errorf("csv %v: unknown label %q", o.Name, label)
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	var path = filepath.Join(o.folder, o.Filename)
	_, err := os.Stat(path)
	var fresh = errors.Is(err, fs.ErrNotExist)
	if fresh {
		if err := os.MkdirAll(o.folder, os.ModePerm); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	var w = csv.NewWriter(f)
	if fresh {
		if err := w.Write(append([]string{"step", "time"}, o.Labels...)); err != nil {
			return err
		}
	}
	var row = make([]string, 2+len(o.Labels))
	row[0] = strconv.Itoa(step)
	row[1] = o.now().UTC().Format(time.RFC3339)
	row[2+col] = strconv.FormatFloat(value, 'g', -1, 64)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if o.listed {
		return nil
	}
	if err := o.logs.Register(o.Filename, TypeCSV, o.Name); err != nil {
		return err
	}
	o.listed = true
	return nil
}

// CSVListener writes results[Key] under Label of its output.
type CSVListener struct {
	Output *CSVOutput
	Key    string
	Label  string
}

func NewCSVListener(output *CSVOutput, key, label string) (*CSVListener, error) {
	if output.column(label) < 0 {
		return nil, fmt.Errorf("csv %v: unknown label %q", output.Name, label)
	}
	return &CSVListener{Output: output, Key: key, Label: label}, nil
}

func (l *CSVListener) Listen(results ml.Results) error {
	var value, ok = results.Scalar(l.Key)
	if !ok {
		return fmt.Errorf("%w %q for csv %v", ErrMissingResult, l.Key, l.Output.Name)
	}
	step, _ := results.Scalar("step")
	return l.Output.Write(int(step), l.Label, value)
}
