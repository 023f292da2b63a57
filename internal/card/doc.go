// Package card defines the oracle record types shared by the parser, the
// rulings cache and the query filter.
//
// Costs use the plain-text corpus notation: a generic digit run followed by
// W/U/B/R/G symbols, each worth one converted point. Colours and card types
// are closed enumerations represented as bit sets so filters can test subset
// and superset relations directly.
package card
