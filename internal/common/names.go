package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// sensorNamesFromYAML is the on-disk format of the optional sensor names file.
// Indices refer to the original float offsets in the pm_table blob.
//
//	sensors:
//	  - index: 268
//	    name: "Core0 Power (W)"
type sensorNamesFromYAML struct {
	Sensors []struct {
		Index int    `yaml:"index"`
		Name  string `yaml:"name"`
	} `yaml:"sensors"`
}

// LoadSensorNames reads a YAML file mapping original sensor indices to human
// readable names. Used by the sensors listing and the correlation reporter.
func LoadSensorNames(path string) (names map[int]string, err error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		err = fmt.Errorf("failed to read sensor names file: %v", err)
		return
	}
	var parsed sensorNamesFromYAML
	if err = yaml.Unmarshal(yamlFile, &parsed); err != nil {
		err = fmt.Errorf("failed to parse sensor names file %s: %v", path, err)
		return
	}
	names = make(map[int]string, len(parsed.Sensors))
	for _, s := range parsed.Sensors {
		names[s.Index] = s.Name
	}
	return
}
