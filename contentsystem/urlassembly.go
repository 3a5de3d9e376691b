package contentsystem

import "strings"

// hashToGalaxyPath derives the three-segment CDN directory layout
// ("hh/hh/hash") from a content hash, ported from
// original_source/src/utils.rs::hash_to_galaxy_path.
func hashToGalaxyPath(hash string) string {
	return hash[0:2] + "/" + hash[2:4] + "/" + hash
}

// assembleURL substitutes an Endpoint's named parameters into its
// url_format template and appends the requested relative path, ported
// from original_source/src/utils.rs::assemble_url. When the endpoint
// carries no parameters, the relative path is appended directly to
// url_format with a separating slash.
func assembleURL(endpoint Endpoint, relative string) string {
	if len(endpoint.Parameters) == 0 {
		return endpoint.URLFormat + "/" + relative
	}

	url := endpoint.URLFormat
	for param, value := range endpoint.Parameters {
		placeholder := "{" + param + "}"
		newValue := value
		if param == "path" {
			newValue = newValue + "/" + relative
		}
		url = strings.ReplaceAll(url, placeholder, newValue)
	}
	return url
}
