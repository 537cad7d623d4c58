// Command check_openapi verifies that api/openapi.yaml documents exactly the
// routes the gateway serves and the error and book shapes it writes.
package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	"bookshelf/pkg/domain"
	"bookshelf/services/gateway/internal/server"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

func main() {
	path := "api/openapi.yaml"
	switch len(os.Args) {
	case 1:
	case 2:
		path = os.Args[1]
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}

	doc, err := loadDoc(path)
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func check(doc openAPIDoc) error {
	if err := checkRoutes(doc, server.Routes); err != nil {
		return err
	}
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	detail, err := getSchema(doc, "ErrorDetail")
	if err != nil {
		return err
	}
	if err := validateErrorDetail(detail); err != nil {
		return err
	}
	book, err := getSchema(doc, "Book")
	if err != nil {
		return err
	}
	return validateBook(book)
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// checkRoutes requires a one-to-one match between documented operations and
// served ones.
func checkRoutes(doc openAPIDoc, routes map[string][]string) error {
	var problems []string
	for path, methods := range routes {
		item, ok := doc.Paths[path]
		if !ok {
			problems = append(problems, fmt.Sprintf("path %s not documented", path))
			continue
		}
		for _, m := range methods {
			if _, ok := item[strings.ToLower(m)]; !ok {
				problems = append(problems, fmt.Sprintf("%s %s not documented", m, path))
			}
		}
	}
	for path, item := range doc.Paths {
		served := makeSet(routes[path])
		for key := range item {
			if !httpMethods[key] {
				continue
			}
			if !served[strings.ToUpper(key)] {
				problems = append(problems, fmt.Sprintf("%s %s documented but not served", strings.ToUpper(key), path))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New("routes: " + strings.Join(problems, "; "))
	}
	return nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		if prop, ok := s.Properties[field]; !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	detailsProp, ok := s.Properties["details"]
	if !ok || detailsProp.Type != "array" {
		return errors.New("ErrorResponse.details must be array")
	}
	if detailsProp.Items == nil || strings.TrimSpace(detailsProp.Items.Ref) != "#/components/schemas/ErrorDetail" {
		return errors.New("ErrorResponse.details.items must reference ErrorDetail")
	}
	return nil
}

func validateErrorDetail(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorDetail must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"field", "reason"} {
		if !required[field] {
			return fmt.Errorf("ErrorDetail.required must include %q", field)
		}
		if prop, ok := s.Properties[field]; !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorDetail.%s must be string", field)
		}
	}
	return nil
}

// validateBook compares the documented Book properties with the JSON names
// of domain.Book.
func validateBook(s schema) error {
	want := jsonFields(reflect.TypeOf(domain.Book{}))
	got := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		got = append(got, name)
	}
	sort.Strings(got)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		return fmt.Errorf("Book properties mismatch: documented %v, served %v", got, want)
	}
	return nil
}

func jsonFields(t reflect.Type) []string {
	out := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
