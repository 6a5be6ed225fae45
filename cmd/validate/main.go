package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jwebster45206/campaign-engine/internal/seed"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <seed.yaml|seed.json>...\n", os.Args[0])
		os.Exit(1)
	}

	failed := false
	for _, filename := range os.Args[1:] {
		validator := &SeedValidator{}
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("%s is valid (%s)\n", filename, validator.summary)
	}
	if failed {
		os.Exit(1)
	}
}

type SeedValidator struct {
	errors  []string
	summary string
}

func (v *SeedValidator) validateFile(filename string) error {
	fmt.Printf("Validating %s...\n", filename)

	baseName := filepath.Base(filename)
	ext := strings.ToLower(filepath.Ext(baseName))
	if ext != ".yaml" && ext != ".yml" && ext != ".json" {
		return fmt.Errorf("seed file must have .yaml, .yml or .json extension: %s", baseName)
	}
	if !isValidSeedFilename(strings.TrimSuffix(baseName, filepath.Ext(baseName))) {
		return fmt.Errorf("seed filename '%s' must be lowercase snake_case (e.g., lost_mine.yaml, not Lost-Mine.yaml)", baseName)
	}

	s, err := seed.ReadFile(filename)
	if err != nil {
		return err
	}

	v.errors = nil
	for _, p := range seed.Validate(s) {
		v.addError(p)
	}
	v.lintSeed(s)

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}

	v.summary = fmt.Sprintf("%d characters, %d locations, %d edges, %d encounters, %d rules",
		len(s.Characters), len(s.Locations), len(s.Edges), len(s.Encounters), len(s.Rules))
	return nil
}

// lintSeed adds authoring checks that the loader tolerates.
func (v *SeedValidator) lintSeed(s *seed.Seed) {
	ruleNames := make(map[string]int64, len(s.Rules))
	for _, r := range s.Rules {
		key := strings.ToLower(strings.TrimSpace(r.Name))
		if other, ok := ruleNames[key]; ok && key != "" {
			v.addError(fmt.Sprintf("rule %d reuses the name '%s' of rule %d", r.ID, r.Name, other))
			continue
		}
		ruleNames[key] = r.ID
	}

	for _, l := range s.Locations {
		if strings.TrimSpace(l.Name) == "" {
			v.addError(fmt.Sprintf("location %d has no name", l.ID))
		}
	}

	for _, c := range s.Characters {
		for attr := range c.Attributes {
			if !isValidAttributeName(attr) {
				v.addError(fmt.Sprintf("character %d has invalid attribute name '%s' - should be lowercase snake_case", c.ID, attr))
			}
		}
	}
}

func (v *SeedValidator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var (
	validAttributeRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
	validFilenameRegex  = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)
)

func isValidAttributeName(name string) bool {
	return validAttributeRegex.MatchString(name)
}

func isValidSeedFilename(name string) bool {
	// Allow 'x.' prefix for experimental campaigns
	name = strings.TrimPrefix(name, "x.")
	return validFilenameRegex.MatchString(name)
}
