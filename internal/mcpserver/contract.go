package mcpserver

// SnapshotFormat describes the cache snapshot document and the pseudonym
// naming rules for LLM consumers.
const SnapshotFormat = `# rocache Snapshot Format

The cache directory holds two things:

- ` + "`" + `rocrate_data.json` + "`" + `: the snapshot document described below.
- ` + "`" + `artifacts/` + "`" + `: one symbolic link per artifact, named by its pseudonym and
  pointing at the file or directory inside the crate.

## Document

` + "```" + `json
{
  "version": "3",
  "rocrates": [
    {
      "uuid": "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
      "path": "/abs/path/to/crate",
      "metadata": "<sha-256 of ro-crate-metadata.json>",
      "valid": true,
      "artifacts": [
        {
          "id": "data.csv",
          "name": "Data",
          "type": "File",
          "description": "Raw measurements",
          "path": "/abs/path/to/crate",
          "pseudonym": "data_file.csv",
          "version": "1.0",
          "metadata": "<blake3 of the entity properties>",
          "symbolic_link": "/cache/artifacts/data_file.csv"
        }
      ]
    }
  ]
}
` + "```" + `

- ` + "`" + `version` + "`" + ` is a decimal string and grows by one on every rescan.
- ` + "`" + `artifacts` + "`" + ` is ` + "`" + `null` + "`" + ` for crates that failed validation.
- ` + "`" + `type` + "`" + ` is a string for a single type and a list otherwise.
- ` + "`" + `symbolic_link` + "`" + ` is ` + "`" + `null` + "`" + ` for remote entities and failed links.

## Pseudonyms

| Entity type | Pseudonym |
|---|---|
| File | ` + "`" + `<stem>_file<ext>` + "`" + ` |
| File + SoftwareSourceCode | ` + "`" + `<stem>_script<ext>` + "`" + ` |
| Dataset | ` + "`" + `<stem>` + "`" + ` |
| anything else | ` + "`" + `<stem>_<description>` + "`" + ` (first 20 characters, lower case, spaces as underscores), or the id itself without a description |

Path separators in the id become underscores. A pseudonym already taken by a
different file in the same rescan gets a numeric suffix before the extension
(` + "`" + `data_file-2.csv` + "`" + `). Pseudonyms of unchanged crates are stable across
rescans.
`
