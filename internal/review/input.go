package review

// RepoMetadata describes the repository state under review.
type RepoMetadata struct {
	Root   string `json:"root"`
	Head   string `json:"head"`
	Branch string `json:"branch"`
}

// ReferenceDoc is a piece of reference material, such as a review checklist,
// handed to every source unchanged.
type ReferenceDoc struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Input is the review input package. The aggregation core never inspects it
// beyond forwarding it to each source.
type Input struct {
	Repo       RepoMetadata   `json:"repositoryMetadata"`
	Mode       string         `json:"mode"`
	Range      string         `json:"range,omitempty"`
	Diff       string         `json:"unifiedDiff"`
	Files      []string       `json:"files,omitempty"`
	Reference  []ReferenceDoc `json:"referenceMaterial,omitempty"`
	FocusHints []string       `json:"focusHints,omitempty"`
}

// InputInfo describes what was reviewed, without the payload.
type InputInfo struct {
	Mode      string   `json:"mode"`
	Range     string   `json:"range,omitempty"`
	Files     []string `json:"files,omitempty"`
	Reference []string `json:"reference,omitempty"`
}

// Info summarizes the input for reports.
func (in Input) Info() InputInfo {
	info := InputInfo{
		Mode:  in.Mode,
		Range: in.Range,
		Files: in.Files,
	}
	for _, r := range in.Reference {
		info.Reference = append(info.Reference, r.Name)
	}
	return info
}
