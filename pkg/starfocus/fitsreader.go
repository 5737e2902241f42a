package starfocus

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	fitsRecordLen = 80
	fitsBlockLen  = 2880
)

// ErrUnsupportedBitpix is returned for FITS pixel formats the reader does not decode.
var ErrUnsupportedBitpix = errors.New("unsupported BITPIX")

// FitsMetadata holds parsed FITS header key-value pairs. Keys are upper case.
type FitsMetadata struct {
	Headers map[string]string
}

// NewFitsMetadata creates an empty FitsMetadata.
func NewFitsMetadata() *FitsMetadata {
	return &FitsMetadata{Headers: make(map[string]string)}
}

func (m *FitsMetadata) GetString(key string) string {
	return m.Headers[strings.ToUpper(key)]
}

func (m *FitsMetadata) GetDouble(key string) (float64, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	d, err := strconv.ParseFloat(v, 64)
	return d, err == nil
}

func (m *FitsMetadata) GetInt(key string) (int, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i, true
	}
	// Some capture programs write integral keywords as "1234.0".
	d, err := strconv.ParseFloat(v, 64)
	if err != nil || d != math.Trunc(d) {
		return 0, false
	}
	return int(d), true
}

func (m *FitsMetadata) GetDateTime(key string) (time.Time, bool) {
	v, ok := m.Headers[strings.ToUpper(key)]
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (m *FitsMetadata) ObjectName() string { return m.GetString("OBJECT") }
func (m *FitsMetadata) Filter() string     { return m.GetString("FILTER") }
func (m *FitsMetadata) CameraName() string { return m.GetString("INSTRUME") }
func (m *FitsMetadata) BayerPattern() string {
	return strings.ToUpper(m.GetString("BAYERPAT"))
}

func (m *FitsMetadata) ExposureTime() (float64, bool) {
	if v, ok := m.GetDouble("EXPTIME"); ok {
		return v, true
	}
	return m.GetDouble("EXPOSURE")
}

// FocusPosition returns the focuser step count recorded with the exposure.
func (m *FitsMetadata) FocusPosition() (int, bool) {
	for _, key := range []string{"FOCUSPOS", "FOCPOS"} {
		if v, ok := m.GetInt(key); ok {
			return v, true
		}
	}
	return 0, false
}

// FocusTemperature returns the focuser temperature in Celsius, if recorded.
func (m *FitsMetadata) FocusTemperature() (float64, bool) {
	for _, key := range []string{"FOCTEMP", "FOCUSTEM"} {
		if v, ok := m.GetDouble(key); ok {
			return v, true
		}
	}
	return 0, false
}

// FitsImageData holds the primary HDU of a FITS file. Pixels are physical
// values (BZERO and BSCALE applied), row-major in file order.
type FitsImageData struct {
	Pixels   []float64
	Width    int
	Height   int
	BitDepth int
	Metadata *FitsMetadata
}

// Image returns a copy of the pixels as an Image; later changes to Pixels
// do not reach it.
func (f *FitsImageData) Image() (*Image, error) {
	if f.Pixels == nil {
		return nil, errors.New("FITS data was read without pixels")
	}
	return NewImage(f.Pixels, f.Width, f.Height, f.BitDepth)
}

// ReadFits reads FITS headers and pixel data from a file.
func ReadFits(filePath string) (*FitsImageData, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readFits(bufio.NewReader(f), false)
}

// ReadFitsMetadataOnly reads only FITS headers without loading pixel data.
func ReadFitsMetadataOnly(filePath string) (*FitsImageData, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("opening FITS file: %w", err)
	}
	defer f.Close()
	return readFits(bufio.NewReader(f), true)
}

// ReadFitsFromBytes reads FITS headers and pixel data from a byte slice.
func ReadFitsFromBytes(data []byte) (*FitsImageData, error) {
	return readFits(bytes.NewReader(data), false)
}

type fitsHeader struct {
	bitpix, naxis, width, height int
	bzero, bscale                float64
}

func readFits(r io.Reader, headersOnly bool) (*FitsImageData, error) {
	metadata := NewFitsMetadata()
	hdr, err := readFitsHeader(r, metadata)
	if err != nil {
		return nil, err
	}
	if hdr.naxis < 2 || hdr.width <= 0 || hdr.height <= 0 {
		return nil, fmt.Errorf("invalid FITS: NAXIS=%d, NAXIS1=%d, NAXIS2=%d", hdr.naxis, hdr.width, hdr.height)
	}

	out := &FitsImageData{
		Width:    hdr.width,
		Height:   hdr.height,
		BitDepth: 16,
		Metadata: metadata,
	}
	if hdr.bitpix == 8 {
		out.BitDepth = 8
	}
	if headersOnly {
		return out, nil
	}
	out.Pixels, err = decodeFitsPixels(r, hdr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readFitsHeader consumes header blocks up to and including the one holding END.
func readFitsHeader(r io.Reader, metadata *FitsMetadata) (fitsHeader, error) {
	hdr := fitsHeader{bscale: 1}
	block := make([]byte, fitsBlockLen)
	for {
		if _, err := io.ReadFull(r, block); err != nil {
			return hdr, fmt.Errorf("reading FITS header block: %w", err)
		}
		for off := 0; off < fitsBlockLen; off += fitsRecordLen {
			record := string(block[off : off+fitsRecordLen])
			keyword := strings.TrimSpace(record[:8])
			if keyword == "END" {
				return hdr, nil
			}
			if record[8] != '=' || record[9] != ' ' {
				continue
			}
			raw := strings.TrimSpace(strings.SplitN(record[10:], "/", 2)[0])
			value := parseFitsValue(raw)
			if keyword != "" && value != "" {
				metadata.Headers[strings.ToUpper(keyword)] = value
			}
			switch keyword {
			case "BITPIX":
				hdr.bitpix, _ = strconv.Atoi(raw)
			case "NAXIS":
				hdr.naxis, _ = strconv.Atoi(raw)
			case "NAXIS1":
				hdr.width, _ = strconv.Atoi(raw)
			case "NAXIS2":
				hdr.height, _ = strconv.Atoi(raw)
			case "BZERO":
				hdr.bzero, _ = strconv.ParseFloat(raw, 64)
			case "BSCALE":
				hdr.bscale, _ = strconv.ParseFloat(raw, 64)
			}
		}
	}
}

func decodeFitsPixels(r io.Reader, hdr fitsHeader) ([]float64, error) {
	n := hdr.width * hdr.height
	pixels := make([]float64, n)
	scale := func(v float64) float64 { return v*hdr.bscale + hdr.bzero }

	var err error
	switch hdr.bitpix {
	case 8:
		raw := make([]uint8, n)
		if _, err = io.ReadFull(r, raw); err == nil {
			for i, v := range raw {
				pixels[i] = scale(float64(v))
			}
		}
	case 16:
		raw := make([]int16, n)
		if err = binary.Read(r, binary.BigEndian, raw); err == nil {
			for i, v := range raw {
				pixels[i] = scale(float64(v))
			}
		}
	case 32:
		raw := make([]int32, n)
		if err = binary.Read(r, binary.BigEndian, raw); err == nil {
			for i, v := range raw {
				pixels[i] = scale(float64(v))
			}
		}
	case -32:
		raw := make([]float32, n)
		if err = binary.Read(r, binary.BigEndian, raw); err == nil {
			for i, v := range raw {
				pixels[i] = scale(float64(v))
			}
		}
	case -64:
		if err = binary.Read(r, binary.BigEndian, pixels); err == nil {
			for i, v := range pixels {
				pixels[i] = scale(v)
			}
		}
	default:
		return nil, fmt.Errorf("BITPIX %d: %w", hdr.bitpix, ErrUnsupportedBitpix)
	}
	if err != nil {
		return nil, fmt.Errorf("reading BITPIX %d pixel data: %w", hdr.bitpix, err)
	}
	return pixels, nil
}

func parseFitsValue(raw string) string {
	switch {
	case raw == "":
		return ""
	case raw == "T":
		return "True"
	case raw == "F":
		return "False"
	case strings.HasPrefix(raw, "'"):
		if end := strings.LastIndex(raw, "'"); end > 0 {
			return strings.TrimRight(raw[1:end], " ")
		}
		return strings.Trim(raw, "' ")
	}
	return raw
}
