// Package validation checks and normalizes decoded request bodies.
// Every entry point returns either a typed value or field errors; none
// of them panic or return a Go error for bad client input.
package validation

import (
	"bookshelf/pkg/domain"
)

type bookCreateInput struct {
	Title  string  `json:"title" validate:"min=1"`
	Author string  `json:"author" validate:"min=1"`
	Pages  float64 `json:"pages" validate:"integral,gt=0"`
	Year   float64 `json:"year" validate:"integral,gte=0,lte=2100"`
}

type bookUpdateInput struct {
	Title  *string  `json:"title" validate:"omitnil,min=1"`
	Author *string  `json:"author" validate:"omitnil,min=1"`
	Pages  *float64 `json:"pages" validate:"omitnil,integral,gt=0"`
	Year   *float64 `json:"year" validate:"omitnil,integral,gte=0,lte=2100"`
}

// Credential validates a register/login body.
func Credential(raw map[string]any) (domain.Credential, Errors) {
	var errs Errors
	email, errs := stringField(raw, "email", true, errs)
	password, errs := stringField(raw, "password", true, errs)
	cred := domain.Credential{}
	if email != nil {
		cred.Email = *email
	}
	if password != nil {
		cred.Password = *password
	}
	errs = validateStruct(cred, errs)
	if len(errs) > 0 {
		return domain.Credential{}, errs
	}
	return cred, nil
}

// BookCreate validates a create body. pages and year are coerced to numbers
// first, so "412" is accepted as 412. Unknown keys such as owner_id are dropped.
func BookCreate(raw map[string]any) (domain.NewBook, Errors) {
	var errs Errors
	title, errs := stringField(raw, "title", true, errs)
	author, errs := stringField(raw, "author", true, errs)
	in := bookCreateInput{
		Pages: numberField(raw, "pages"),
		Year:  numberField(raw, "year"),
	}
	if title != nil {
		in.Title = *title
	}
	if author != nil {
		in.Author = *author
	}
	errs = validateStruct(in, errs)
	if len(errs) > 0 {
		return domain.NewBook{}, errs
	}
	return domain.NewBook{
		Title:  in.Title,
		Author: in.Author,
		Pages:  int(in.Pages),
		Year:   int(in.Year),
	}, nil
}

// BookUpdate validates a partial update body. Absent fields stay nil and
// are not coerced; an empty patch is valid.
func BookUpdate(raw map[string]any) (domain.BookPatch, Errors) {
	var errs Errors
	in := bookUpdateInput{}
	in.Title, errs = stringField(raw, "title", false, errs)
	in.Author, errs = stringField(raw, "author", false, errs)
	if _, ok := raw["pages"]; ok {
		v := numberField(raw, "pages")
		in.Pages = &v
	}
	if _, ok := raw["year"]; ok {
		v := numberField(raw, "year")
		in.Year = &v
	}
	errs = validateStruct(in, errs)
	if len(errs) > 0 {
		return domain.BookPatch{}, errs
	}
	patch := domain.BookPatch{Title: in.Title, Author: in.Author}
	if in.Pages != nil {
		n := int(*in.Pages)
		patch.Pages = &n
	}
	if in.Year != nil {
		n := int(*in.Year)
		patch.Year = &n
	}
	return patch, nil
}

// stringField reads key as a JSON string. A missing required key or a value
// of another JSON type is recorded in errs.
func stringField(raw map[string]any, key string, required bool, errs Errors) (*string, Errors) {
	v, ok := raw[key]
	if !ok {
		if required {
			return nil, errs.add(key, "is required")
		}
		return nil, errs
	}
	s, isString := v.(string)
	if !isString {
		return nil, errs.add(key, "must be a string")
	}
	return &s, errs
}

func numberField(raw map[string]any, key string) float64 {
	v, ok := raw[key]
	return ToNumber(v, ok)
}
