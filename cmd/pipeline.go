package cmd

import (
	"path/filepath"
	"strings"

	"flakeview/internal/git"
	"flakeview/internal/pipeline"
	"flakeview/pkg/models"
)

// BuiltinPipeline names the marketplace harmonization pipeline compiled into
// the binary.
const BuiltinPipeline = "builtin:harmonize"

// loadPipeline returns the configured pipeline and a label for where it came
// from. A non-empty ref reads the pipeline file as of that git revision.
func loadPipeline(cfg *models.Config, ref string) (pipeline.Pipeline, string, error) {
	path := cfg.Deployment.Pipeline
	if path == "" || path == BuiltinPipeline {
		return pipeline.Harmonize(), BuiltinPipeline, nil
	}

	if ref == "" {
		p, err := pipeline.Load(path)
		return p, path, err
	}

	gm, err := git.NewGitManager(filepath.Dir(path))
	if err != nil {
		return nil, "", err
	}
	data, err := gm.FileAt(ref, path)
	if err != nil {
		return nil, "", err
	}
	p, err := pipeline.Parse(data)
	return p, path + "@" + ref, err
}

// pipelineCommit is the HEAD of the repository holding the pipeline file,
// or of the working directory for the built-in pipeline.
func pipelineCommit(cfg *models.Config, ref string) string {
	dir := "."
	if path := cfg.Deployment.Pipeline; path != "" && path != BuiltinPipeline {
		dir = filepath.Dir(path)
	}

	if ref != "" {
		if gm, err := git.NewGitManager(dir); err == nil {
			if c, err := gm.Commit(ref); err == nil {
				return c.Hash
			}
		}
	}
	return git.HeadCommit(dir)
}

func splitNames(list string) []string {
	var names []string
	for _, name := range strings.Split(list, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
