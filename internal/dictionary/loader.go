package dictionary

import (
	"bufio"
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/kham/internal/apperr"
)

//go:embed data/thai_words.txt
var defaultWords []byte

// DefaultBase returns the embedded Thai vocabulary.
func DefaultBase() []Entry {
	entries, err := ParseBase(bytes.NewReader(defaultWords))
	if err != nil {
		panic(fmt.Sprintf("embedded dictionary is invalid: %v", err))
	}
	return entries
}

// LoadBase reads a base vocabulary file. An empty path returns the embedded vocabulary.
func LoadBase(path string) ([]Entry, error) {
	if path == "" {
		return DefaultBase(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open base dictionary: %w", err)
	}
	defer f.Close()
	return ParseBase(f)
}

// ParseBase reads one word per line, optionally followed by whitespace and a frequency.
// Blank lines and lines starting with # are skipped.
func ParseBase(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		e := Entry{Word: fields[0], Frequency: DefaultFrequency}
		if len(fields) > 1 {
			f, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid frequency %q", lineNo, fields[1])
			}
			e.Frequency = f
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dictionary: %w", err)
	}
	return entries, nil
}

// ParseCustom decodes a custom dictionary: a JSON array of strings, or an object whose
// values are arrays of strings (category -> words). Categories are read in sorted order.
func ParseCustom(data []byte) ([]string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var categories map[string][]string
	if err := json.Unmarshal(data, &categories); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, err,
			"custom dictionary must be an array of strings or an object of string arrays")
	}
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		list = append(list, categories[name]...)
	}
	return list, nil
}

// LoadCustom reads a custom dictionary file. A missing file yields no words.
func LoadCustom(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read custom dictionary: %w", err)
	}
	return ParseCustom(data)
}

// SaveCustom writes words as a JSON array, replacing path atomically.
func SaveCustom(path string, words []string) error {
	if words == nil {
		words = []string{}
	}
	data, err := json.MarshalIndent(words, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal custom dictionary: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create dictionary directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".custom-*.json")
	if err != nil {
		return fmt.Errorf("failed to write custom dictionary: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write custom dictionary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write custom dictionary: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace custom dictionary: %w", err)
	}
	return nil
}
