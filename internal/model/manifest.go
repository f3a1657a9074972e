package model

import "fmt"

type Manifest struct {
	Repo  string      `json:"repo"`
	Files []ModelFile `json:"files"`
}

type ModelFile struct {
	Filename string `json:"filename"`
	Revision string `json:"revision"`
	SHA256   string `json:"sha256"`
	// Optional files are skipped when the repository does not have them.
	Optional bool `json:"optional,omitempty"`
}

// ManifestFor returns the files to provision for repo. Known repositories
// get their full tokenizer file set; any other hub repository gets
// tokenizer.json plus optional companions. Checksums left empty are resolved
// from hub metadata or recorded on first download into the lock manifest.
func ManifestFor(repo string) (Manifest, error) {
	ref, err := ParseRef(repo)
	if err != nil {
		return Manifest{}, err
	}

	if ref.Kind != KindHub {
		return Manifest{}, fmt.Errorf("model %s is embedded; nothing to download", repo)
	}

	switch ref.ID {
	case "TaylorAI/bge-micro-v2":
		return Manifest{
			Repo: ref.ID,
			Files: []ModelFile{
				{Filename: "tokenizer.json", Revision: "main"},
				{Filename: "tokenizer_config.json", Revision: "main"},
				{Filename: "special_tokens_map.json", Revision: "main"},
				{Filename: "vocab.txt", Revision: "main"},
				{Filename: "config.json", Revision: "main"},
			},
		}, nil
	default:
		return Manifest{
			Repo: ref.ID,
			Files: []ModelFile{
				{Filename: "tokenizer.json", Revision: "main"},
				{Filename: "tokenizer_config.json", Revision: "main", Optional: true},
				{Filename: "special_tokens_map.json", Revision: "main", Optional: true},
			},
		}, nil
	}
}
