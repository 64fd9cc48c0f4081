// Package cliconfig fills command configuration structs from CLI flags,
// environment variables and a key=value configuration file.
//
// It is intended for internal use by dagger-pipelines only.
package cliconfig

import (
	"fmt"
	"os"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/buildkite/dagger-pipelines/internal/osutil"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

type Loader struct {
	// The context that is passed when using a urfave/cli action
	CLI *cli.Context

	// The struct that the config values will be loaded into
	Config any

	// A slice of paths to files that should be used as config files
	DefaultConfigFilePaths []string

	// The file that was used when loading this configuration
	File *File
}

// Matches "arg:index" (specific non-flag arg) or "arg:*" (all non-flag args).
var argCLINameRE = regexp.MustCompile(`^arg:(\d+|\*)$`)

// Load loads the config from the CLI and the first config file that is
// present, and returns any warnings or errors.
func (l *Loader) Load() (warnings []string, err error) {
	if err := l.findFile(); err != nil {
		return warnings, err
	}

	fields, err := reflections.FieldsDeep(l.Config)
	if err != nil {
		return warnings, fmt.Errorf("listing config fields: %w", err)
	}

	var used []string

	for _, fieldName := range fields {
		cliName, _ := reflections.GetFieldTag(l.Config, fieldName, "cli")
		if cliName != "" {
			used = append(used, cliName)
			if err := l.setFieldValueFromCLI(fieldName, cliName); err != nil {
				return warnings, fmt.Errorf("setting config field %s: %w", fieldName, err)
			}
		}

		if normalization, _ := reflections.GetFieldTag(l.Config, fieldName, "normalize"); normalization != "" {
			if err := l.normalizeField(fieldName, normalization); err != nil {
				return warnings, fmt.Errorf("normalizing config field %s: %w", fieldName, err)
			}
		}

		if rules, _ := reflections.GetFieldTag(l.Config, fieldName, "validate"); rules != "" {
			label, _ := reflections.GetFieldTag(l.Config, fieldName, "label")
			if label == "" {
				label = cliName
			}
			if label == "" {
				label = fieldName
			}

			if err := l.validateField(fieldName, label, rules); err != nil {
				return warnings, err
			}
		}
	}

	// Config files are shared between commands, so keys another command
	// understands are fine. Keys nothing understands are probably typos.
	if l.File != nil {
		for _, key := range l.File.Keys() {
			if !slices.Contains(used, key) && !l.isKnownFlag(key) {
				warnings = append(warnings, fmt.Sprintf("The config option `%s` in %s isn't used by `%s`", key, l.File.Path, l.commandName()))
			}
		}
	}

	return warnings, nil
}

// findFile picks the file passed with --config, or the first default path
// that exists.
func (l *Loader) findFile() error {
	if path := l.CLI.String("config"); path != "" {
		file := File{Path: path}

		// It was asked for explicitly, so it has to be there
		if !file.Exists() {
			absolutePath, _ := file.AbsolutePath()
			return fmt.Errorf("a configuration file could not be found at: %q", absolutePath)
		}
		l.File = &file
	} else {
		for _, path := range l.DefaultConfigFilePaths {
			file := File{Path: path}
			if file.Exists() {
				l.File = &file
				break
			}
		}
	}

	if l.File == nil {
		return nil
	}

	if err := l.File.Load(); err != nil {
		return fmt.Errorf("loading config file: %w", err)
	}
	return nil
}

func (l Loader) setFieldValueFromCLI(fieldName, cliName string) error {
	fieldKind, err := reflections.GetFieldKind(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the kind of struct field %q: %w", fieldName, err)
	}
	fieldType, err := reflections.GetFieldType(l.Config, fieldName)
	if err != nil {
		return fmt.Errorf("getting the type of struct field %q: %w", fieldName, err)
	}

	var value any

	if argMatch := argCLINameRE.FindStringSubmatch(cliName); len(argMatch) > 0 {
		value, err = l.argValue(fieldName, argMatch[1])
		if err != nil {
			return err
		}
	} else {
		// The config file provides the default, and an explicitly set flag
		// or environment variable wins over it.
		if l.File != nil {
			if raw, ok := l.File.Config[cliName]; ok {
				value, err = convert(raw, fieldKind, fieldType)
				if err != nil {
					return fmt.Errorf("config file value for %s: %w", cliName, err)
				}
			}
		}

		if value == nil || l.cliValueIsSet(cliName) {
			value, err = l.flagValue(cliName, fieldKind, fieldType)
			if err != nil {
				return err
			}
		}
	}

	if value == nil {
		return nil
	}

	if err := reflections.SetField(l.Config, fieldName, value); err != nil {
		return fmt.Errorf("setting value field %q to %q: %w", fieldName, value, err)
	}
	return nil
}

func (l Loader) argValue(fieldName, argNum string) (any, error) {
	args := l.CLI.Args()

	if argNum == "*" {
		return []string(args), nil
	}

	argIndex, err := strconv.Atoi(argNum)
	if err != nil {
		return nil, fmt.Errorf("converting string to int: %w", err)
	}

	if len(args) > argIndex {
		return args[argIndex], nil
	}

	// Positional args can fall back to an environment variable
	if envName, err := reflections.GetFieldTag(l.Config, fieldName, "env"); err == nil && envName != "" {
		if envValue, ok := os.LookupEnv(envName); ok {
			return envValue, nil
		}
	}

	return nil, nil
}

func (l Loader) flagValue(cliName string, kind reflect.Kind, fieldType string) (any, error) {
	switch kind {
	case reflect.String:
		return l.CLI.String(cliName), nil
	case reflect.Slice:
		return l.CLI.StringSlice(cliName), nil
	case reflect.Bool:
		return l.CLI.Bool(cliName), nil
	case reflect.Int:
		return l.CLI.Int(cliName), nil
	case reflect.Int64:
		switch fieldType {
		case "int64":
			return l.CLI.Int64(cliName), nil
		case "time.Duration":
			return l.CLI.Duration(cliName), nil
		}
		return nil, fmt.Errorf("unsupported field type %s for kind int64", fieldType)
	default:
		return nil, fmt.Errorf("unable to handle type: %s", kind)
	}
}

func convert(raw string, kind reflect.Kind, fieldType string) (any, error) {
	switch kind {
	case reflect.String:
		return raw, nil
	case reflect.Slice:
		return strings.Split(raw, ","), nil
	case reflect.Bool:
		return strconv.ParseBool(raw)
	case reflect.Int:
		return strconv.Atoi(raw)
	case reflect.Int64:
		switch fieldType {
		case "int64":
			return strconv.ParseInt(raw, 10, 64)
		case "time.Duration":
			return time.ParseDuration(raw)
		}
		return nil, fmt.Errorf("unsupported field type %s for kind int64", fieldType)
	default:
		return nil, fmt.Errorf("unable to convert string to type %s", kind)
	}
}

func (l Loader) Errorf(format string, v ...any) error {
	suffix := fmt.Sprintf(" See: `%s %s --help`", l.CLI.App.Name, l.commandName())

	return fmt.Errorf(format+suffix, v...)
}

func (l Loader) commandName() string {
	if l.CLI.Command.Name != "" {
		return l.CLI.Command.Name
	}
	return l.CLI.App.Name
}

// cliValueIsSet reports whether the flag was passed on the command line or
// through its EnvVar. cli.Context#IsSet only knows about the former.
func (l Loader) cliValueIsSet(cliName string) bool {
	if l.CLI.IsSet(cliName) {
		return true
	}

	for _, flag := range l.CLI.Command.Flags {
		name, _ := reflections.GetField(flag, "Name")
		envVar, _ := reflections.GetField(flag, "EnvVar")
		if name != cliName {
			continue
		}

		envVarStr, ok := envVar.(string)
		if !ok || envVarStr == "" {
			return false
		}

		for envName := range strings.SplitSeq(envVarStr, ",") {
			if os.Getenv(strings.TrimSpace(envName)) != "" {
				return true
			}
		}
	}

	return false
}

func (l Loader) isKnownFlag(name string) bool {
	flags := slices.Clone(l.CLI.App.Flags)
	for _, cmd := range l.CLI.App.Commands {
		flags = append(flags, cmd.Flags...)
	}

	for _, flag := range flags {
		for n := range strings.SplitSeq(flag.GetName(), ",") {
			if strings.TrimSpace(n) == name {
				return true
			}
		}
	}
	return false
}

func (l Loader) fieldValueIsEmpty(fieldName string) bool {
	value, _ := reflections.GetField(l.Config, fieldName)
	v := reflect.ValueOf(value)
	return !v.IsValid() || v.IsZero()
}

func (l Loader) validateField(fieldName, label, validationRules string) error {
	for rule := range strings.SplitSeq(validationRules, ",") {
		switch rule {
		case "required":
			if l.fieldValueIsEmpty(fieldName) {
				return l.Errorf("Missing %s.", label)
			}

		case "file-exists":
			value, _ := reflections.GetField(l.Config, fieldName)
			if path, ok := value.(string); ok && path != "" {
				if _, err := os.Stat(path); err != nil {
					return fmt.Errorf("couldn't find %s located at %s: %w", label, path, err)
				}
			}

		default:
			return fmt.Errorf("unknown config validation rule %q", rule)
		}
	}

	return nil
}

func (l Loader) normalizeField(fieldName, normalization string) error {
	value, _ := reflections.GetField(l.Config, fieldName)

	switch normalization {
	case "filepath":
		path, ok := value.(string)
		if !ok {
			return fmt.Errorf("filepath normalization only works on string fields")
		}

		normalized, err := osutil.NormalizeFilePath(path)
		if err != nil {
			return err
		}
		return reflections.SetField(l.Config, fieldName, normalized)

	case "list":
		list, ok := value.([]string)
		if !ok {
			return fmt.Errorf("list normalization only works on slice fields")
		}

		normalized := []string{}
		for _, item := range list {
			// Split values with commas into fields
			for part := range strings.SplitSeq(item, ",") {
				if part = strings.TrimSpace(part); part != "" {
					normalized = append(normalized, part)
				}
			}
		}
		return reflections.SetField(l.Config, fieldName, normalized)

	default:
		return fmt.Errorf("unknown normalization %q", normalization)
	}
}
