package service

import (
	"runtime"
	"time"

	"learnhub/internal/harness/model"
	"learnhub/internal/harness/sandbox/engine"
	"learnhub/internal/harness/sandbox/helperproto"
)

// LanguageSettings overrides per-language commands and bounds.
type LanguageSettings struct {
	CompileTemplate string              `yaml:"compileTemplate"`
	RunTemplate     string              `yaml:"runTemplate"`
	CompileTimeout  time.Duration       `yaml:"compileTimeout"`
	RunTimeout      time.Duration       `yaml:"runTimeout"`
	Limits          helperproto.Limits  `yaml:"limits"`
	Cgroup          engine.CgroupLimits `yaml:"cgroup"`
	Env             []string            `yaml:"env"`
}

// Settings are the tunables of a harness instance.
type Settings struct {
	WorkRoot       string                      `yaml:"workRoot"`
	MaxConcurrent  int                         `yaml:"maxConcurrent"`
	QueueWait      time.Duration               `yaml:"queueWait"`
	MaxCodeSize    int                         `yaml:"maxCodeSize"`
	MaxCases       int                         `yaml:"maxCases"`
	CompileTimeout time.Duration               `yaml:"compileTimeout"`
	RunTimeout     time.Duration               `yaml:"runTimeout"`
	CaseTimeout    time.Duration               `yaml:"caseTimeout"`
	Languages      map[string]LanguageSettings `yaml:"languages"`
}

// DefaultLanguageSettings returns the built-in bounds per language.
func DefaultLanguageSettings() map[string]LanguageSettings {
	return map[string]LanguageSettings{
		string(model.Python): {
			Limits: helperproto.Limits{CPUSeconds: 6, AddressMB: 1024, FileSizeMB: 16, OpenFiles: 256},
			Env:    []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
		},
		string(model.JavaScript): {
			RunTimeout: 8 * time.Second,
			Limits:     helperproto.Limits{CPUSeconds: 10, FileSizeMB: 16, OpenFiles: 256},
		},
		string(model.Java): {
			CompileTimeout: 30 * time.Second,
			RunTimeout:     10 * time.Second,
			Limits:         helperproto.Limits{CPUSeconds: 12, FileSizeMB: 16, OpenFiles: 512},
		},
		string(model.C): {
			Limits: helperproto.Limits{CPUSeconds: 6, AddressMB: 512, FileSizeMB: 16, OpenFiles: 64, StackMB: 64},
		},
		string(model.CPP): {
			CompileTimeout: 30 * time.Second,
			Limits:         helperproto.Limits{CPUSeconds: 6, AddressMB: 512, FileSizeMB: 16, OpenFiles: 64, StackMB: 64},
		},
	}
}

// withDefaults fills unset fields. Language entries merge onto the built-in ones.
func (s Settings) withDefaults() Settings {
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = runtime.NumCPU()
	}
	if s.QueueWait <= 0 {
		s.QueueWait = 2 * time.Second
	}
	if s.MaxCodeSize <= 0 {
		s.MaxCodeSize = model.DefaultMaxCodeSize
	}
	if s.MaxCases <= 0 {
		s.MaxCases = model.DefaultMaxCases
	}
	if s.CompileTimeout <= 0 {
		s.CompileTimeout = 20 * time.Second
	}
	if s.RunTimeout <= 0 {
		s.RunTimeout = 5 * time.Second
	}
	if s.CaseTimeout <= 0 {
		s.CaseTimeout = 3 * time.Second
	}
	merged := DefaultLanguageSettings()
	for name, override := range s.Languages {
		lang, ok := model.NormalizeLanguage(name)
		if !ok {
			continue
		}
		base := merged[string(lang)]
		if override.CompileTemplate != "" {
			base.CompileTemplate = override.CompileTemplate
		}
		if override.RunTemplate != "" {
			base.RunTemplate = override.RunTemplate
		}
		if override.CompileTimeout > 0 {
			base.CompileTimeout = override.CompileTimeout
		}
		if override.RunTimeout > 0 {
			base.RunTimeout = override.RunTimeout
		}
		if override.Limits != (helperproto.Limits{}) {
			base.Limits = override.Limits
		}
		if override.Cgroup != (engine.CgroupLimits{}) {
			base.Cgroup = override.Cgroup
		}
		if len(override.Env) > 0 {
			base.Env = append(append([]string{}, base.Env...), override.Env...)
		}
		merged[string(lang)] = base
	}
	s.Languages = merged
	return s
}

func (s Settings) language(lang model.Language) LanguageSettings {
	ls := s.Languages[string(lang)]
	if ls.CompileTimeout <= 0 {
		ls.CompileTimeout = s.CompileTimeout
	}
	if ls.RunTimeout <= 0 {
		ls.RunTimeout = s.RunTimeout
	}
	return ls
}
