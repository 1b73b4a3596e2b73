// Package urls holds the documentation URLs the CLI prints, so they can be
// updated in one place before a release.
//
// Usage:
//
//	fmt.Printf("See: %s\n", urls.Troubleshooting)
package urls
