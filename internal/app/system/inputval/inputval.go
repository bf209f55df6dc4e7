// Package inputval validates request input with struct tags.
//
//	type registerInput struct {
//		Email string `validate:"required,email" label:"Email"`
//	}
//
// Rules: required, min=N, max=N (characters, after trimming), email,
// objectid, teamcode.
package inputval

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string
	Message string
}

// Result collects every failed rule in field order.
type Result struct {
	Errors []FieldError
}

func (r *Result) HasErrors() bool { return len(r.Errors) > 0 }

// First returns the first message, or "".
func (r *Result) First() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// All joins every message with "; ".
func (r *Result) All() string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the string fields of struct v (or *v) against their
// validate tags. Only the first failing rule of each field is reported.
func Validate(v any) *Result {
	res := &Result{}
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return res
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		tag := f.Tag.Get("validate")
		if tag == "" || f.Type.Kind() != reflect.String {
			continue
		}
		label := f.Tag.Get("label")
		if label == "" {
			label = f.Name
		}
		if msg := check(strings.TrimSpace(rv.Field(i).String()), label, tag); msg != "" {
			res.Errors = append(res.Errors, FieldError{Field: f.Name, Message: msg})
		}
	}
	return res
}

func check(val, label, tag string) string {
	for _, rule := range strings.Split(tag, ",") {
		name, arg, _ := strings.Cut(strings.TrimSpace(rule), "=")
		if val == "" && name != "required" {
			continue
		}
		switch name {
		case "required":
			if val == "" {
				return label + " is required."
			}
		case "min":
			if n, err := strconv.Atoi(arg); err == nil && utf8.RuneCountInString(val) < n {
				return fmt.Sprintf("%s must be at least %d characters.", label, n)
			}
		case "max":
			if n, err := strconv.Atoi(arg); err == nil && utf8.RuneCountInString(val) > n {
				return fmt.Sprintf("%s must be at most %d characters.", label, n)
			}
		case "email":
			if !IsValidEmail(val) {
				return "A valid email address is required."
			}
		case "objectid":
			if !IsValidObjectID(val) {
				return label + " is not a valid ID."
			}
		case "teamcode":
			if !IsValidTeamCode(val) {
				return label + " must be a 6 character code."
			}
		}
	}
	return ""
}

// IsValidEmail accepts a bare addr-spec: no display name, no spaces, no
// leading, trailing or doubled dots in either part. Single-label domains
// are allowed.
func IsValidEmail(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || strings.ContainsAny(s, " \t\r\n<>()[],;:\\\"") {
		return false
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || strings.Contains(domain, "@") {
		return false
	}
	return dotAtom(local) && dotAtom(domain)
}

func dotAtom(s string) bool {
	if s == "" || s[0] == '.' || s[len(s)-1] == '.' {
		return false
	}
	return !strings.Contains(s, "..")
}

// IsValidObjectID reports whether s (trimmed) is 24 hex characters.
func IsValidObjectID(s string) bool {
	_, err := primitive.ObjectIDFromHex(strings.TrimSpace(s))
	return err == nil
}

// IsValidTeamCode reports whether s is six letters or digits, any case.
func IsValidTeamCode(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) != 6 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
