// Package model contains domain models passed between layers.
package model

import "strings"

// Item is one bibliographic record to screen. Items are never mutated.
type Item struct {
	ID       string
	Title    string
	Abstract string
	Keywords string
	Year     string
	Source   string
}

// Text is the concatenation the classifier matches against.
func (it Item) Text() string {
	return strings.Join([]string{it.Title, it.Abstract, it.Keywords}, " ")
}
