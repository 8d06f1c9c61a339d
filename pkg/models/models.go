package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Model describes a backend model the web client can talk to.
type Model struct {
	// Name is the user-facing name ("gpt-4").
	Name string `json:"name" yaml:"name"`
	// Slug is the identifier sent on the wire and reported back in message metadata.
	Slug string `json:"slug" yaml:"slug"`
	// NeedsArkoseToken is set for models that reject requests without an anti-bot token.
	NeedsArkoseToken bool `json:"needs_arkose_token" yaml:"needs_arkose_token"`
}

func (m Model) MarshalZerologObject(e *zerolog.Event) {
	e.Str("name", m.Name)
	e.Str("slug", m.Slug)
	e.Bool("needs_arkose_token", m.NeedsArkoseToken)
}

var _ zerolog.LogObjectMarshaler = Model{}

var (
	GPT35 = Model{Name: "gpt-3.5", Slug: "text-davinci-002-render-sha", NeedsArkoseToken: false}
	GPT4  = Model{Name: "gpt-4", Slug: "gpt-4", NeedsArkoseToken: true}
)

// Default is used for new conversations when no model is given.
var Default = GPT35

var all = []Model{GPT35, GPT4}

var ErrUnknownModel = errors.New("unknown model")

// UnknownModelError is returned when a name or slug does not match any registered model.
type UnknownModelError struct {
	Name string
	Slug string
}

func (e *UnknownModelError) Error() string {
	if e == nil {
		return ErrUnknownModel.Error()
	}
	if e.Slug != "" {
		return fmt.Sprintf("%q is not a known model slug. Available models: %s", e.Slug, strings.Join(Names(), ", "))
	}
	return fmt.Sprintf("%q is not a valid model. Available models: %s", e.Name, strings.Join(Names(), ", "))
}

func (e *UnknownModelError) Is(target error) bool { return target == ErrUnknownModel }

// All returns a copy of the registry in declaration order.
func All() []Model {
	ret := make([]Model, len(all))
	copy(ret, all)
	return ret
}

func Names() []string {
	ret := make([]string, 0, len(all))
	for _, m := range all {
		ret = append(ret, m.Name)
	}
	return ret
}

func FromName(name string) (Model, error) {
	for _, m := range all {
		if m.Name == name {
			return m, nil
		}
	}
	return Model{}, &UnknownModelError{Name: name}
}

func FromSlug(slug string) (Model, error) {
	for _, m := range all {
		if m.Slug == slug {
			return m, nil
		}
	}
	return Model{}, &UnknownModelError{Slug: slug}
}
