// Copyright (C) 2025 Ridgeline AI (engineering@ridgelineai.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// ReportArtifact holds the rendered supplement package. PDF is empty
// when no renderer is configured or rendering failed non-fatally.
type ReportArtifact struct {
	HTML string `json:"html"`
	PDF  []byte `json:"-"`
}
