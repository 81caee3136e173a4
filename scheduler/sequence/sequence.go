// Package sequence reads capture sequence files (.esq) and counts the frames
// a sequence has already written to disk.
package sequence

import (
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/teranos/nightshift/errors"
)

// FrameType is the kind of frame an item captures.
type FrameType int

const (
	FrameLight FrameType = iota
	FrameBias
	FrameDark
	FrameFlat
)

var frameTypes = map[string]FrameType{
	"Light": FrameLight,
	"Bias":  FrameBias,
	"Dark":  FrameDark,
	"Flat":  FrameFlat,
}

// UploadMode is where captured frames are stored.
type UploadMode int

const (
	UploadClient UploadMode = iota // written by the client, countable locally
	UploadRemote                   // kept on the device host only
	UploadBoth
)

// Item is one entry of a capture sequence.
type Item struct {
	Exposure         float64
	Filter           string
	Type             FrameType
	TypeName         string
	RawPrefix        string
	FilterEnabled    bool
	ExpEnabled       bool
	TimeStampEnabled bool
	Count            int
	Delay            int
	FITSDirectory    string
	RemoteDirectory  string
	Upload           UploadMode
}

// FullPrefix is the file name prefix of frames written by the item.
func (it Item) FullPrefix() string {
	prefix := it.RawPrefix
	if prefix != "" {
		prefix += "_"
	}
	prefix += it.TypeName
	if it.FilterEnabled && it.Filter != "" && (it.Type == FrameLight || it.Type == FrameFlat) {
		prefix += "_" + it.Filter
	}
	if it.ExpEnabled {
		prefix += "_" + strconv.FormatFloat(it.Exposure, 'f', 0, 64) + "_secs"
	}
	return prefix
}

// DirectoryPostfix is the per-target sub-directory frames are written to.
func (it Item) DirectoryPostfix(target string) string {
	postfix := "/" + target + "/" + it.TypeName
	if (it.Type == FrameLight || it.Type == FrameFlat) && it.Filter != "" {
		postfix += "/" + it.Filter
	}
	return postfix
}

// Signature identifies the output of an item for a target.
func (it Item) Signature(target string) string {
	return it.FITSDirectory + it.DirectoryPostfix(target)
}

// Duration is the time to capture n frames of the item, in seconds.
func (it Item) Duration(n int) float64 {
	return (it.Exposure + float64(it.Delay)) * float64(n)
}

// Sequence is a parsed capture sequence.
type Sequence struct {
	Autofocus bool // in-sequence autofocus
	Items     []Item
}

type xmlSequence struct {
	Autofocus *struct {
		Enabled string `xml:"enabled,attr"`
	} `xml:"Autofocus"`
	Jobs []xmlItem `xml:"Job"`
}

type xmlItem struct {
	Exposure string `xml:"Exposure"`
	Filter   string `xml:"Filter"`
	Type     string `xml:"Type"`
	Prefix   struct {
		RawPrefix        string `xml:"RawPrefix"`
		FilterEnabled    string `xml:"FilterEnabled"`
		ExpEnabled       string `xml:"ExpEnabled"`
		TimeStampEnabled string `xml:"TimeStampEnabled"`
	} `xml:"Prefix"`
	Count           string `xml:"Count"`
	Delay           string `xml:"Delay"`
	FITSDirectory   string `xml:"FITSDirectory"`
	RemoteDirectory string `xml:"RemoteDirectory"`
	UploadMode      string `xml:"UploadMode"`
}

// Load reads a sequence file.
func Load(path string) (*Sequence, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("sequence file %s", path)
		}
		return nil, errors.Wrapf(err, "failed to open sequence file %s", path)
	}
	defer f.Close()
	seq, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "sequence file %s", path)
	}
	return seq, nil
}

// Parse decodes a sequence document.
func Parse(r io.Reader) (*Sequence, error) {
	var doc xmlSequence
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.WithHint(
			errors.Wrap(errors.ErrInvalidRequest, err.Error()),
			"the capture sequence must be an XML document with <Job> entries")
	}

	seq := &Sequence{}
	if doc.Autofocus != nil {
		seq.Autofocus = doc.Autofocus.Enabled == "true"
	}
	for _, x := range doc.Jobs {
		it := Item{
			Filter:           strings.TrimSpace(x.Filter),
			TypeName:         strings.TrimSpace(x.Type),
			RawPrefix:        strings.TrimSpace(x.Prefix.RawPrefix),
			FilterEnabled:    strings.TrimSpace(x.Prefix.FilterEnabled) == "1",
			ExpEnabled:       strings.TrimSpace(x.Prefix.ExpEnabled) == "1",
			TimeStampEnabled: strings.TrimSpace(x.Prefix.TimeStampEnabled) == "1",
			FITSDirectory:    strings.TrimSpace(x.FITSDirectory),
			RemoteDirectory:  strings.TrimSpace(x.RemoteDirectory),
		}
		it.Type = frameTypes[it.TypeName]
		it.Exposure, _ = strconv.ParseFloat(strings.TrimSpace(x.Exposure), 64)
		it.Count, _ = strconv.Atoi(strings.TrimSpace(x.Count))
		it.Delay, _ = strconv.Atoi(strings.TrimSpace(x.Delay))
		mode, _ := strconv.Atoi(strings.TrimSpace(x.UploadMode))
		it.Upload = UploadMode(mode)
		seq.Items = append(seq.Items, it)
	}
	return seq, nil
}

// HasLightFrames reports whether any item captures light frames.
func (s *Sequence) HasLightFrames() bool {
	for _, it := range s.Items {
		if it.Type == FrameLight {
			return true
		}
	}
	return false
}

// CompletedFiles counts the files in dir whose base name starts with prefix.
// A missing directory holds no files.
func CompletedFiles(dir, prefix string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to list %s", dir)
	}
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if strings.HasPrefix(baseName(e.Name()), prefix) {
			n++
		}
	}
	return n, nil
}

// baseName strips everything from the first dot.
func baseName(name string) string {
	name = filepath.Base(name)
	if i := strings.IndexByte(name, '.'); i >= 0 {
		return name[:i]
	}
	return name
}
