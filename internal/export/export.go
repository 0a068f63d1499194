package export

import (
	"encoding/binary"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"govna/internal/vna"
)

const fileMagic = "GVNA1"

// Metadata describes the acquisition a trace file came from.
type Metadata struct {
	InstrumentID      string
	MeasurementName   string
	Parameter         string
	AcquisitionTime   time.Time
	FileFormatVersion uint16
}

type Writer struct{}

func NewWriter() *Writer {
	return &Writer{}
}

// WriteFile writes one acquired trace as a self-describing binary archive.
// The output directory is created if needed.
func (w *Writer) WriteFile(filename string, metadata Metadata, trace *vna.TracePair) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if err := w.writeHeader(file, metadata, uint32(len(trace.Freq))); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	if err := w.writeTrace(file, trace); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}

	return nil
}

func (w *Writer) writeHeader(file *os.File, metadata Metadata, pointCount uint32) error {
	if _, err := file.WriteString(fileMagic); err != nil {
		return err
	}

	if err := binary.Write(file, binary.LittleEndian, metadata.FileFormatVersion); err != nil {
		return err
	}

	acqUnix := metadata.AcquisitionTime.Unix()
	acqNano := metadata.AcquisitionTime.Nanosecond()
	if err := binary.Write(file, binary.LittleEndian, int64(acqUnix)); err != nil {
		return err
	}
	if err := binary.Write(file, binary.LittleEndian, int32(acqNano)); err != nil {
		return err
	}

	if err := writeString(file, metadata.InstrumentID); err != nil {
		return err
	}
	if err := writeString(file, metadata.MeasurementName); err != nil {
		return err
	}
	if err := writeString(file, metadata.Parameter); err != nil {
		return err
	}

	return binary.Write(file, binary.LittleEndian, pointCount)
}

func (w *Writer) writeTrace(file *os.File, trace *vna.TracePair) error {
	for _, f := range trace.Freq {
		if err := binary.Write(file, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	for _, v := range trace.Data {
		if err := binary.Write(file, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func writeString(file *os.File, s string) error {
	b := []byte(s)
	if len(b) > 255 {
		b = b[:255]
	}
	if err := binary.Write(file, binary.LittleEndian, uint8(len(b))); err != nil {
		return err
	}
	_, err := file.Write(b)
	return err
}

func readString(file *os.File) (string, error) {
	var n uint8
	if err := binary.Read(file, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := file.Read(b); err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadFile reads the complete file including the trace data
func ReadFile(filename string) (*Metadata, *vna.TracePair, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	magic := make([]byte, len(fileMagic))
	if _, err := file.Read(magic); err != nil {
		return nil, nil, fmt.Errorf("failed to read magic: %w", err)
	}
	if string(magic) != fileMagic {
		return nil, nil, fmt.Errorf("invalid file format")
	}

	var metadata Metadata
	if err := binary.Read(file, binary.LittleEndian, &metadata.FileFormatVersion); err != nil {
		return nil, nil, err
	}

	var acqUnix int64
	var acqNano int32
	if err := binary.Read(file, binary.LittleEndian, &acqUnix); err != nil {
		return nil, nil, err
	}
	if err := binary.Read(file, binary.LittleEndian, &acqNano); err != nil {
		return nil, nil, err
	}
	metadata.AcquisitionTime = time.Unix(acqUnix, int64(acqNano))

	if metadata.InstrumentID, err = readString(file); err != nil {
		return nil, nil, err
	}
	if metadata.MeasurementName, err = readString(file); err != nil {
		return nil, nil, err
	}
	if metadata.Parameter, err = readString(file); err != nil {
		return nil, nil, err
	}

	var pointCount uint32
	if err := binary.Read(file, binary.LittleEndian, &pointCount); err != nil {
		return nil, nil, err
	}

	trace := &vna.TracePair{
		Freq: make([]float64, pointCount),
		Data: make([]float64, pointCount),
	}
	for i := range trace.Freq {
		if err := binary.Read(file, binary.LittleEndian, &trace.Freq[i]); err != nil {
			return nil, nil, err
		}
	}
	for i := range trace.Data {
		if err := binary.Read(file, binary.LittleEndian, &trace.Data[i]); err != nil {
			return nil, nil, err
		}
	}

	return &metadata, trace, nil
}

// WriteCSV writes one acquired trace as frequency/value rows. The output
// directory is created if needed.
func (w *Writer) WriteCSV(filename string, metadata Metadata, trace *vna.TracePair) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write([]string{"frequency_hz", "value"}); err != nil {
		return err
	}
	for i, f := range trace.Freq {
		row := []string{
			strconv.FormatFloat(f, 'g', -1, 64),
			strconv.FormatFloat(trace.Data[i], 'g', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
