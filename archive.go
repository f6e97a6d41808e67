package modeltypes

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/flytam/filenamify"
	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/klauspost/compress/zip"
)

const (
	// UnitSuffix is the extension of a plugin unit
	UnitSuffix = ".jar"
	// ClassSuffix is the extension of a class entry inside a unit
	ClassSuffix = ".class"
)

// ArchivePolicy decides whether a downloaded archive is a single plugin unit
// or an archive of units
type ArchivePolicy string

const (
	// FirstEntryWins classifies the archive by the first class or nested unit
	// entry found. An archive that lists a class entry before its nested units
	// is treated as a single unit.
	FirstEntryWins ArchivePolicy = "first_entry"
	// AnyNestedUnit treats the archive as an archive of units whenever it
	// contains at least one nested unit
	AnyNestedUnit ArchivePolicy = "any_nested"
)

// ParseArchivePolicy returns the policy named s
func ParseArchivePolicy(s string) (ArchivePolicy, error) {
	switch ArchivePolicy(s) {
	case FirstEntryWins, AnyNestedUnit:
		return ArchivePolicy(s), nil
	}

	return "", errors.InvalidArgument("archive policy", "unknown archive policy %q, expected %s or %s", s, FirstEntryWins, AnyNestedUnit)
}

// Unit is a plugin unit extracted from an archive and staged on disk
type Unit struct {
	// Name is the derived file name of the unit
	Name string
	// Path is the staged location used for class loading
	Path string
	Data []byte
	// Candidates are the plugin class names found in the unit
	Candidates []string
	// Existing is true when the unit was already staged before extraction
	Existing bool
}

// Extractor is the NestedArchiveExtractor, it flattens a downloaded archive
// into plugin units and discovers plugin candidates
type Extractor struct {
	stagingDir string
	policy     ArchivePolicy
	marker     string
	pattern    *regexp.Regexp
	maxSize    int64
	log        logger.Logger
}

// NewExtractor creates an Extractor that stages units in o.StagingDir
func NewExtractor(o *Options) (*Extractor, error) {
	re, err := regexp.Compile(o.CandidatePattern)
	if err != nil {
		return nil, errors.InvalidArgument("extractor", "invalid candidate pattern %q: %s", o.CandidatePattern, err)
	}

	l := o.Logger
	if l == nil {
		l = logger.Nop()
	}

	return &Extractor{
		stagingDir: filepath.Join(o.StagingDir, "units"),
		policy:     o.ArchivePolicy,
		marker:     o.UnitMarker,
		pattern:    re,
		maxSize:    o.MaxUnitSize,
		log:        l,
	}, nil
}

// Extract reads the archive at archivePath and returns its units in archive
// order. Units that are already staged are not written again.
func (e *Extractor) Extract(archivePath string) ([]Unit, error) {
	op := "extract"

	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.TransientIO(op, err, "unable to open archive %s", archivePath)
	}
	defer r.Close()

	if err := os.MkdirAll(e.stagingDir, os.ModePerm); err != nil {
		return nil, errors.TransientIO(op, err, "unable to create staging folder")
	}

	if !e.isArchiveOfUnits(r.File) {
		data, err := os.ReadFile(archivePath)
		if err != nil {
			return nil, errors.TransientIO(op, err, "unable to read archive %s", archivePath)
		}

		u, err := e.stage(filepath.Base(archivePath), data)
		if err != nil {
			return nil, err
		}

		e.log.Debug("archive is a single plugin unit", "archive", archivePath)
		return []Unit{u}, nil
	}

	units := []Unit{}
	staged := map[string]bool{}
	for _, f := range r.File {
		if !isNestedUnit(f.Name) || isExcludedUnit(f.Name) {
			continue
		}

		if int64(f.UncompressedSize64) > e.maxSize {
			e.log.Warn("skipping oversized unit", "unit", f.Name, "size", f.UncompressedSize64)
			continue
		}

		data, err := readEntry(f, e.maxSize)
		if err != nil {
			return nil, errors.TransientIO(op, err, "unable to extract %s", f.Name)
		}

		// units sharing a file name in different folders keep their folder
		name := path.Base(f.Name)
		if staged[name] {
			e.log.Warn("nested unit name is not unique, using its full path", "unit", f.Name)
			name = f.Name
		}
		staged[name] = true

		u, err := e.stage(name, data)
		if err != nil {
			return nil, err
		}

		units = append(units, u)
	}

	e.log.Debug("extracted nested plugin units", "archive", archivePath, "units", len(units))

	return units, nil
}

// Restore stages a persisted unit when it is missing from the staging
// folder and returns its path
func (e *Extractor) Restore(name string, data []byte) (string, error) {
	p := filepath.Join(e.stagingDir, name)

	if _, err := os.Stat(p); err == nil {
		return p, nil
	}

	if err := os.MkdirAll(e.stagingDir, os.ModePerm); err != nil {
		return "", errors.TransientIO("restore unit", err, "unable to create staging folder")
	}

	if err := writeFileAtomic(p, data); err != nil {
		return "", errors.TransientIO("restore unit", err, "unable to stage unit %s", name)
	}

	return p, nil
}

func (e *Extractor) isArchiveOfUnits(files []*zip.File) bool {
	for _, f := range files {
		switch {
		case isNestedUnit(f.Name):
			return true
		case e.policy == FirstEntryWins && isClassEntry(f.Name):
			return false
		}
	}

	return false
}

// stage writes the unit to the staging folder unless a unit with the same
// derived name is already there
func (e *Extractor) stage(name string, data []byte) (Unit, error) {
	op := "stage"

	safe, err := filenamify.Filenamify(name, filenamify.Options{Replacement: "_", MaxLength: 255})
	if err != nil {
		return Unit{}, errors.InvalidArgument(op, "invalid unit name %q: %s", name, err)
	}

	u := Unit{
		Name: safe,
		Path: filepath.Join(e.stagingDir, safe),
		Data: data,
	}

	if _, err := os.Stat(u.Path); err == nil {
		u.Existing = true
	} else if err := writeFileAtomic(u.Path, data); err != nil {
		return Unit{}, errors.TransientIO(op, err, "unable to stage unit %s", safe)
	}

	if strings.Contains(safe, e.marker) {
		u.Candidates, err = e.candidates(data)
		if err != nil {
			return Unit{}, errors.TransientIO(op, err, "unable to scan unit %s", safe)
		}
	}

	return u, nil
}

func (e *Extractor) candidates(data []byte) ([]string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	found := []string{}
	for _, f := range r.File {
		// nested and anonymous classes are never plugins
		if !isClassEntry(f.Name) || strings.Contains(f.Name, "$") {
			continue
		}

		name := ClassName(f.Name)
		if e.pattern.MatchString(name) {
			found = append(found, name)
		}
	}

	return found, nil
}

// ClassName converts a class entry name to a class name,
// org/example/XsdSequencer.class becomes org.example.XsdSequencer
func ClassName(entry string) string {
	return strings.TrimSuffix(strings.ReplaceAll(entry, "/", "."), ClassSuffix)
}

// ClassEntry is the inverse of ClassName
func ClassEntry(className string) string {
	return strings.ReplaceAll(className, ".", "/") + ClassSuffix
}

func isClassEntry(name string) bool {
	return strings.HasSuffix(name, ClassSuffix)
}

func isNestedUnit(name string) bool {
	return strings.HasSuffix(name, UnitSuffix)
}

func isExcludedUnit(name string) bool {
	base := strings.ToLower(path.Base(name))
	return strings.Contains(base, "test") || strings.Contains(base, "source")
}

func readEntry(f *zip.File, max int64) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, max+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > max {
		return nil, fmt.Errorf("entry exceeds %d bytes", max)
	}

	return data, nil
}

// writeFileAtomic writes to a temporary file first so a crash never leaves a
// truncated file at path
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), path)
}
