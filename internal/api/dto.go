package api

import "github.com/starford/rocache/internal/crateservice"

// CrateItem is a crate in a list response (aliased from the domain layer).
type CrateItem = crateservice.CrateItem

// ArtifactDetail is the resolved artifact response (aliased from the domain layer).
type ArtifactDetail = crateservice.ArtifactDetail

// SearchHit is a single search hit (aliased from the domain layer).
type SearchHit = crateservice.SearchHit

// RescanResult is the summary of an update cycle (aliased from the domain layer).
type RescanResult = crateservice.RescanResult

// CrateListResponse wraps crate listings.
type CrateListResponse struct {
	Crates []CrateItem `json:"crates" validate:"required"`
	Total  int         `json:"total" example:"3" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchHit `json:"results" validate:"required"`
}
