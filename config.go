package modeltypes

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/jumppad-labs/modeltypes/errors"
	"github.com/jumppad-labs/modeltypes/logger"
	"github.com/zclconf/go-cty/cty"
)

const (
	// DefaultVersion is the engine version used to compute archive names
	DefaultVersion = "3.8.1.Final"

	// DefaultLocation is the node holding the persisted registry state
	DefaultLocation = "/system/modelTypeManager"

	DefaultArchiveURLTemplate = "{{{url}}}/modeshape-sequencer-{{category}}/{{version}}/{{archive}}"
	DefaultArchiveSuffix      = "-module-with-dependencies.zip"
)

// DefaultRepositories are seeded the first time a registry is created
var DefaultRepositories = []string{
	"https://repository.jboss.org/nexus/content/groups/public/org/modeshape/",
	"https://repo1.maven.org/maven2/org/modeshape/",
}

// Options configure a Registry and the Manager that owns it
type Options struct {
	// Version reported by the repository engine
	Version string
	// Repositories seeded on first construction, searched in order
	Repositories []string
	// StagingDir holds downloaded archives and extracted plugin units
	StagingDir string
	// StateDir holds the persisted repository content
	StateDir string
	// FetchTimeout bounds every archive download, zero disables the bound
	FetchTimeout time.Duration
	// ArchivePolicy decides how a downloaded archive is classified
	ArchivePolicy ArchivePolicy
	// UnitMarker must be part of a unit's file name for its classes to become
	// plugin candidates
	UnitMarker string
	// CandidatePattern is matched against class names of marked units
	CandidatePattern string
	// MaxUnitSize is the largest nested unit that will be extracted
	MaxUnitSize int64
	// Location of the persisted registry state in the repository
	Location string
	// ArchiveURLTemplate is a handlebars template rendered with url, category,
	// version and archive
	ArchiveURLTemplate string
	ArchiveSuffix      string
	// Namespaces passed to every plugin on initialization
	Namespaces map[string]string

	Logger logger.Logger
}

// DefaultOptions returns Options with the StagingDir set to
// $HOME/.modeltypes/staging and the StateDir set to $HOME/.modeltypes/state,
// if the $HOME folder can not be determined the current folder is used
func DefaultOptions() *Options {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Options{
		Version:            DefaultVersion,
		Repositories:       append([]string{}, DefaultRepositories...),
		StagingDir:         filepath.Join(home, ".modeltypes", "staging"),
		StateDir:           filepath.Join(home, ".modeltypes", "state"),
		FetchTimeout:       60 * time.Second,
		ArchivePolicy:      FirstEntryWins,
		UnitMarker:         "sequencer",
		CandidatePattern:   "Sequencer$",
		MaxUnitSize:        64 << 20,
		Location:           DefaultLocation,
		ArchiveURLTemplate: DefaultArchiveURLTemplate,
		ArchiveSuffix:      DefaultArchiveSuffix,
		Namespaces: map[string]string{
			"xs": "http://www.w3.org/2001/XMLSchema",
		},
		Logger: logger.Nop(),
	}
}

type fileOptions struct {
	Version            *string           `hcl:"version,optional"`
	Repositories       []string          `hcl:"repositories,optional"`
	StagingDir         *string           `hcl:"staging_dir,optional"`
	StateDir           *string           `hcl:"state_dir,optional"`
	FetchTimeout       *string           `hcl:"fetch_timeout,optional"`
	ArchivePolicy      *string           `hcl:"archive_policy,optional"`
	UnitMarker         *string           `hcl:"unit_marker,optional"`
	CandidatePattern   *string           `hcl:"candidate_pattern,optional"`
	MaxUnitSize        *int64            `hcl:"max_unit_size,optional"`
	Location           *string           `hcl:"location,optional"`
	ArchiveURLTemplate *string           `hcl:"archive_url_template,optional"`
	Namespaces         map[string]string `hcl:"namespaces,optional"`
}

// LoadOptions reads an HCL options file on top of DefaultOptions, the
// variables home and env can be used in expressions, i.e.
//
//	staging_dir = "${env.TMPDIR}/staging"
func LoadOptions(filename string) (*Options, error) {
	op := "load options"
	o := DefaultOptions()

	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.TransientIO(op, err, "unable to read %s", filename)
	}

	fo := fileOptions{}
	if err := hclsimple.Decode(filename, src, optionsContext(), &fo); err != nil {
		return nil, errors.InvalidArgument(op, "unable to parse %s: %s", filename, err)
	}

	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	set(&o.Version, fo.Version)
	set(&o.StagingDir, fo.StagingDir)
	set(&o.StateDir, fo.StateDir)
	set(&o.UnitMarker, fo.UnitMarker)
	set(&o.CandidatePattern, fo.CandidatePattern)
	set(&o.Location, fo.Location)
	set(&o.ArchiveURLTemplate, fo.ArchiveURLTemplate)

	if fo.Repositories != nil {
		o.Repositories = fo.Repositories
	}

	if fo.FetchTimeout != nil {
		d, err := time.ParseDuration(*fo.FetchTimeout)
		if err != nil {
			return nil, errors.InvalidArgument(op, "invalid fetch_timeout %q", *fo.FetchTimeout)
		}
		o.FetchTimeout = d
	}

	if fo.ArchivePolicy != nil {
		p, err := ParseArchivePolicy(*fo.ArchivePolicy)
		if err != nil {
			return nil, err
		}
		o.ArchivePolicy = p
	}

	if fo.MaxUnitSize != nil {
		o.MaxUnitSize = *fo.MaxUnitSize
	}

	for k, v := range fo.Namespaces {
		o.Namespaces[k] = v
	}

	return o, nil
}

func optionsContext() *hcl.EvalContext {
	home, _ := os.UserHomeDir()

	env := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		env[k] = cty.StringVal(v)
	}

	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"home": cty.StringVal(home),
			"env":  cty.ObjectVal(env),
		},
	}
}
