// Package itslearning holds the constants shared by the itslearning
// scraping libraries. The portal has no versioned API surface for the
// things scraped here; every sub-package depends on the DOM and URL
// layout of the hosted instance below.
package itslearning

const (
	// BaseURL is the hosted portal instance.
	BaseURL = "https://sdu.itslearning.com"
	// ResourceURL is the domain resources redirect to after the SSO hop;
	// cookies harvested for downloads must be scoped to it.
	ResourceURL = "https://resource.itslearning.com"
)
