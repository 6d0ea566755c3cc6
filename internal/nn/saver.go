package nn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ChizhovVadim/tfplus/internal/ml"
	"github.com/ChizhovVadim/tfplus/internal/options"
)

const checkpointPrefix = "model.ckpt-"

var ErrNoCheckpoint = errors.New("no checkpoint")

// Saver writes model variables to <folder>/model.ckpt-<step> and keeps the
// newest MaxToKeep files.
type Saver struct {
	model     Model
	folder    string
	logger    *slog.Logger
	MaxToKeep int
}

func NewSaver(model Model, folder string, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saver{
		model:     model,
		folder:    folder,
		logger:    logger,
		MaxToKeep: 5,
	}
}

// Save writes a checkpoint for step together with the model options.
func (s *Saver) Save(step int) (string, error) {
	err := os.MkdirAll(s.folder, os.ModePerm)
	if err != nil {
		return "", err
	}
	var path = filepath.Join(s.folder, checkpointPrefix+strconv.Itoa(step))
	if err := WriteCheckpoint(path, s.model.SaveVarDict()); err != nil {
		return "", err
	}
	values, err := s.model.Options()
	if err != nil {
		return "", err
	}
	if err := options.NewSaver(nil).Save(s.folder, values); err != nil {
		return "", err
	}
	s.logger.Info("saved checkpoint", "path", path)
	return path, s.prune()
}

func (s *Saver) prune() error {
	if s.MaxToKeep <= 0 {
		return nil
	}
	var steps, err = checkpointSteps(s.folder)
	if err != nil {
		return err
	}
	for len(steps) > s.MaxToKeep {
		var path = filepath.Join(s.folder, checkpointPrefix+strconv.Itoa(steps[0]))
		if err := os.Remove(path); err != nil {
			return err
		}
		steps = steps[1:]
	}
	return nil
}

// checkpointSteps lists the steps of checkpoints in folder, ascending.
func checkpointSteps(folder string) ([]int, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, err
	}
	var steps []int
	for _, e := range entries {
		var name = e.Name()
		if e.IsDir() || !strings.HasPrefix(name, checkpointPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(name, checkpointPrefix))
		if err != nil {
			continue
		}
		steps = append(steps, step)
	}
	sort.Ints(steps)
	return steps, nil
}

// LatestCheckpoint returns the path and step of the newest checkpoint.
func LatestCheckpoint(folder string) (string, int, error) {
	var steps, err = checkpointSteps(folder)
	if err != nil {
		return "", 0, err
	}
	if len(steps) == 0 {
		return "", 0, fmt.Errorf("%w in %v", ErrNoCheckpoint, folder)
	}
	var step = steps[len(steps)-1]
	return filepath.Join(folder, checkpointPrefix+strconv.Itoa(step)), step, nil
}

// Checkpoint format:
//   - All the data is stored in little-endian layout
//   - Matrices are written in column-major order as float32
//   - 4 bytes header: 'T', 'F', major version 1, minor version 0
//   - uint32 number of variables
//   - for every variable in name order: uint32 name length, name bytes,
//     uint32 rank (2), uint32 rows, uint32 cols, rows*cols float32 values
func WriteCheckpoint(path string, vars map[string]*ml.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var w = bufio.NewWriter(f)

	if _, err := w.Write([]byte{'T', 'F', 1, 0}); err != nil {
		return err
	}
	var names = sortedNames(vars)
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		var v = vars[name]
		if err := writeUint32(w, uint32(len(name))); err != nil {
			return err
		}
		if _, err := w.WriteString(name); err != nil {
			return err
		}
		for _, x := range []uint32{2, uint32(v.Rows), uint32(v.Cols)} {
			if err := writeUint32(w, x); err != nil {
				return err
			}
		}
		if err := writeSlice(w, v.Data); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// Restore reads a checkpoint into vars. Every variable of vars must be
// present in the file with the same shape.
func Restore(path string, vars map[string]*ml.Matrix) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	var r = bufio.NewReader(f)
	// remaining bounds every length read from the file.
	var remaining = uint64(info.Size())

	var header = make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("%v: %w", path, err)
	}
	if header[0] != 'T' || header[1] != 'F' {
		return fmt.Errorf("%v: not a checkpoint", path)
	}
	if header[2] != 1 || header[3] != 0 {
		return fmt.Errorf("%v: checkpoint version %v.%v is not supported", path, header[2], header[3])
	}
	count, err := readUint32(r)
	if err != nil {
		return fmt.Errorf("%v: %w", path, err)
	}
	remaining -= 8

	var restored = make(map[string]bool)
	for i := uint32(0); i < count; i++ {
		nameLen, err := readUint32(r)
		if err != nil {
			return fmt.Errorf("%v: %w", path, err)
		}
		if remaining < 4+uint64(nameLen)+12 {
			return fmt.Errorf("%v: variable name length %v exceeds file size", path, nameLen)
		}
		remaining -= 4 + uint64(nameLen) + 12
		var name = make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return fmt.Errorf("%v: %w", path, err)
		}
		var dims [3]uint32
		for j := range dims {
			if dims[j], err = readUint32(r); err != nil {
				return fmt.Errorf("%v: %w", path, err)
			}
		}
		if dims[0] != 2 {
			return fmt.Errorf("%v: variable %v has rank %v", path, string(name), dims[0])
		}
		var values = uint64(dims[1]) * uint64(dims[2])
		if values*4 > remaining {
			return fmt.Errorf("%v: variable %v of %vx%v exceeds file size", path, string(name), dims[1], dims[2])
		}
		remaining -= values * 4
		var rows, cols = int(dims[1]), int(dims[2])
		var data = make([]float64, rows*cols)
		if err := readSlice(r, data); err != nil {
			return fmt.Errorf("%v: %w", path, err)
		}
		var v, found = vars[string(name)]
		if !found {
			continue
		}
		if v.Rows != rows || v.Cols != cols {
			return fmt.Errorf("%v: variable %v is %vx%v, checkpoint has %vx%v",
				path, string(name), v.Rows, v.Cols, rows, cols)
		}
		copy(v.Data, data)
		restored[string(name)] = true
	}
	for _, name := range sortedNames(vars) {
		if !restored[name] {
			return fmt.Errorf("%v: variable %v not found", path, name)
		}
	}
	return nil
}

func sortedNames(vars map[string]*ml.Matrix) []string {
	var names = make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeUint32(w io.Writer, x uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], x)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

func writeSlice(w io.Writer, data []float64) error {
	var buf [4]byte
	for _, x := range data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(float32(x)))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

func readSlice(r io.Reader, data []float64) error {
	var buf [4]byte
	for i := range data {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	}
	return nil
}
