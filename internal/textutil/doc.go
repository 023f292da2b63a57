// Package textutil provides caseless text matching helpers used by card
// queries. Folding follows Unicode case folding rules so names such as
// "Æther" match regardless of how they are typed.
package textutil
