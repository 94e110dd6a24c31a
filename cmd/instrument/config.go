package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/jvm-instrument/instrument"
)

// fileConfig is the TOML layout read by -config:
//
//	dispatcher = "com/acme/Hooks"
//	enhanced_exception_sensor = true
//
//	[[class]]
//	name = "com.acme.**"
//
//	  [[class.method]]
//	  name = "handle"
//	  return = "void"
//	  params = ["java.lang.String", "int"]
//	  points = [{ kind = "sensor", id = 7 }]
type fileConfig struct {
	Dispatcher              string        `toml:"dispatcher"`
	EnhancedExceptionSensor bool          `toml:"enhanced_exception_sensor"`
	Classes                 []classConfig `toml:"class"`
}

type classConfig struct {
	Name    string         `toml:"name"`
	Methods []methodConfig `toml:"method"`
}

type methodConfig struct {
	Name   string        `toml:"name"`
	Return string        `toml:"return"`
	Params []string      `toml:"params"`
	Points []pointConfig `toml:"points"`
}

type pointConfig struct {
	Kind string `toml:"kind"`
	ID   uint64 `toml:"id"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return parseConfig(path, data)
}

func parseConfig(path string, data []byte) (*fileConfig, error) {
	var fc fileConfig
	md, err := toml.Decode(string(data), &fc)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if _, err := fc.configs(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fc, nil
}

// configs converts the file into engine configurations.
func (fc *fileConfig) configs() ([]instrument.Config, error) {
	out := make([]instrument.Config, 0, len(fc.Classes))
	for _, c := range fc.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class entry without a name")
		}
		cfg := instrument.Config{Class: c.Name}
		for _, m := range c.Methods {
			if m.Name == "" {
				return nil, fmt.Errorf("class %s: method entry without a name", c.Name)
			}
			ret := m.Return
			if ret == "" {
				ret = "void"
			}
			mm := instrument.MethodMatch{Name: m.Name, ReturnType: ret, Parameters: m.Params}
			for _, p := range m.Points {
				pt, err := p.point()
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", c.Name, m.Name, err)
				}
				mm.Points = append(mm.Points, pt)
			}
			cfg.Methods = append(cfg.Methods, mm)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (p pointConfig) point() (instrument.Point, error) {
	switch p.Kind {
	case "sensor":
		return instrument.SensorPoint{ID: p.ID}, nil
	case "special":
		return instrument.SpecialPoint{ID: p.ID}, nil
	case "class_loader_delegation", "cld":
		return instrument.ClassLoaderDelegationPoint{}, nil
	}
	return nil, fmt.Errorf("unknown point kind %q", p.Kind)
}

func (fc *fileConfig) options() instrument.Options {
	return instrument.Options{
		Dispatcher:              fc.Dispatcher,
		EnhancedExceptionSensor: fc.EnhancedExceptionSensor,
	}
}
