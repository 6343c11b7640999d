package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/forest6511/simplepm/pkg/vault"
)

// entryTemplate describes the fields prompted for by entry add --template.
type entryTemplate struct {
	Name        string
	Description string
	Fields      []templateField
}

// templateField is one prompted value. Fields named username, password or
// url fill the entry's standard fields; the others become custom fields.
type templateField struct {
	Name      string
	Prompt    string
	Protected bool
	Required  bool
	Multiline bool
}

// builtinTemplates are the templates accepted by --template.
var builtinTemplates = map[string]entryTemplate{
	"login": {
		Name:        "login",
		Description: "Login credentials (username, password, url)",
		Fields: []templateField{
			{Name: copyUsername, Prompt: "Username", Required: true},
			{Name: copyPassword, Prompt: "Password", Protected: true, Required: true},
			{Name: copyURL, Prompt: "URL"},
		},
	},
	"database": {
		Name:        "database",
		Description: "Database connection (host, port, username, password, database)",
		Fields: []templateField{
			{Name: "host", Prompt: "Host", Required: true},
			{Name: "port", Prompt: "Port"},
			{Name: copyUsername, Prompt: "Username", Required: true},
			{Name: copyPassword, Prompt: "Password", Protected: true, Required: true},
			{Name: "database", Prompt: "Database name"},
		},
	},
	"api": {
		Name:        "api",
		Description: "API credentials (api_key, api_secret, url)",
		Fields: []templateField{
			{Name: "api_key", Prompt: "API Key", Protected: true, Required: true},
			{Name: "api_secret", Prompt: "API Secret", Protected: true},
			{Name: copyURL, Prompt: "Endpoint URL"},
		},
	},
	"ssh": {
		Name:        "ssh",
		Description: "SSH connection (host, port, username, private_key)",
		Fields: []templateField{
			{Name: "host", Prompt: "Host", Required: true},
			{Name: "port", Prompt: "Port (default: 22)"},
			{Name: copyUsername, Prompt: "Username", Required: true},
			{Name: "private_key", Prompt: "Private Key", Protected: true, Required: true, Multiline: true},
		},
	},
}

// templateNames returns the sorted template names.
func templateNames() []string {
	names := make([]string, 0, len(builtinTemplates))
	for name := range builtinTemplates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupTemplate(name string) (entryTemplate, error) {
	t, ok := builtinTemplates[name]
	if !ok {
		return entryTemplate{}, fmt.Errorf("unknown template: %s (available: %s)", name, strings.Join(templateNames(), ", "))
	}
	return t, nil
}

// promptTemplate asks for each template field that skip does not exclude.
func promptTemplate(t entryTemplate, skip func(name string) bool) (map[string]string, error) {
	fmt.Printf("Using template: %s (%s)\n", t.Name, t.Description)

	values := make(map[string]string)
	for _, tf := range t.Fields {
		if skip(tf.Name) {
			continue
		}
		value, err := readTemplateField(tf)
		if err != nil {
			return nil, err
		}
		if value == "" && tf.Required {
			return nil, fmt.Errorf("field %q is required", tf.Name)
		}
		values[tf.Name] = value
	}
	return values, nil
}

func readTemplateField(tf templateField) (string, error) {
	prompt := tf.Prompt
	if !tf.Required {
		prompt += " (optional)"
	}

	switch {
	case tf.Multiline:
		// Multi-line values end at the first empty line
		fmt.Printf("%s (end with an empty line):\n", prompt)
		var lines []string
		for {
			line, err := readLine()
			if err != nil {
				return "", err
			}
			if line == "" {
				return strings.Join(lines, "\n"), nil
			}
			lines = append(lines, line)
		}
	case tf.Protected:
		value, err := readSecret(prompt + ": ")
		if err != nil {
			return "", err
		}
		defer value.Destroy()
		return value.Expose(), nil
	default:
		fmt.Printf("%s: ", prompt)
		return readLine()
	}
}

// applyTemplate stores prompted values in data. Empty values are skipped.
func applyTemplate(t entryTemplate, values map[string]string, data *vault.EntryData) {
	for _, tf := range t.Fields {
		value := values[tf.Name]
		if value == "" {
			continue
		}
		switch tf.Name {
		case copyUsername:
			data.Username = value
		case copyPassword:
			data.Password = value
		case copyURL:
			data.URL = value
		default:
			data.CustomFields = append(data.CustomFields, vault.CustomField{
				Name:      tf.Name,
				Value:     value,
				Protected: tf.Protected,
			})
		}
	}
}

// fieldFlagNames returns the custom field names given with --field or
// --protected-field.
func fieldFlagNames() map[string]bool {
	names := make(map[string]bool)
	for _, f := range append(append([]string(nil), entryFields...), entryProtectedFields...) {
		if name, _, ok := strings.Cut(f, "="); ok {
			names[strings.TrimSpace(name)] = true
		}
	}
	return names
}
