package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/forest6511/simplepm/internal/app"
	"github.com/forest6511/simplepm/internal/cli"
	"github.com/forest6511/simplepm/pkg/passgen"
	"github.com/forest6511/simplepm/pkg/security"
	"github.com/forest6511/simplepm/pkg/vault"
)

// maxAttachmentSize bounds attachments added through attachment_add.
const maxAttachmentSize = 16 * 1024 * 1024

// GroupInfo is one group of the tree, flattened.
type GroupInfo struct {
	UUID       string `json:"uuid"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	ParentUUID string `json:"parent_uuid,omitempty"`
}

// GroupListInput represents input for group_list tool.
type GroupListInput struct{}

// GroupListOutput represents output for group_list tool.
type GroupListOutput struct {
	Groups []GroupInfo `json:"groups"`
}

// EntrySummary is the metadata of an entry, without secret values.
type EntrySummary struct {
	UUID        string `json:"uuid"`
	Title       string `json:"title"`
	Username    string `json:"username"`
	URL         string `json:"url,omitempty"`
	Group       string `json:"group"`
	Tags        string `json:"tags,omitempty"`
	Favorite    bool   `json:"favorite"`
	Modified    string `json:"modified,omitempty"`
	Expires     bool   `json:"expires"`
	ExpiryTime  string `json:"expiry_time,omitempty"`
	UsageCount  int    `json:"usage_count"`
	HasPassword bool   `json:"has_password"`
}

// EntryListInput represents input for entry_list tool.
type EntryListInput struct {
	Group     string `json:"group,omitempty" jsonschema:"group path or UUID; empty lists every entry"`
	Favorites bool   `json:"favorites,omitempty" jsonschema:"only favorite entries"`
}

// EntryListOutput represents output for entry_list and entry_search tools.
type EntryListOutput struct {
	Entries []EntrySummary `json:"entries"`
}

// EntrySearchInput represents input for entry_search tool.
type EntrySearchInput struct {
	Query string `json:"query" jsonschema:"case-insensitive text matched against title, username, URL, notes and tags"`
	Group string `json:"group,omitempty" jsonschema:"restrict to this group path or UUID and its subgroups"`
}

// EntryGetInput represents input for entry_get tool.
type EntryGetInput struct {
	Entry string `json:"entry" jsonschema:"entry UUID or exact title"`
}

// FieldInfo is a custom field. Protected values are masked unless the
// policy reveals passwords.
type FieldInfo struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Protected bool   `json:"protected"`
}

// AttachmentInfo describes an attachment without its content.
type AttachmentInfo struct {
	Key  string `json:"key"`
	Size int    `json:"size"`
}

// EntryGetOutput represents output for entry_get tool.
type EntryGetOutput struct {
	Entry          EntrySummary     `json:"entry"`
	Password       string           `json:"password"`
	PasswordMasked bool             `json:"password_masked"`
	Strength       string           `json:"strength"`
	Notes          string           `json:"notes,omitempty"`
	CustomFields   []FieldInfo      `json:"custom_fields"`
	Attachments    []AttachmentInfo `json:"attachments"`
	HistoryCount   int              `json:"history_count"`
}

// StatsInput represents input for stats tool.
type StatsInput struct{}

// StatsOutput represents output for stats tool.
type StatsOutput struct {
	TotalEntries            int     `json:"total_entries"`
	TotalGroups             int     `json:"total_groups"`
	WeakPasswords           int     `json:"weak_passwords"`
	ReusedPasswords         int     `json:"reused_passwords"`
	OldPasswords            int     `json:"old_passwords"`
	ExpiredEntries          int     `json:"expired_entries"`
	FavoriteEntries         int     `json:"favorite_entries"`
	AveragePasswordStrength float64 `json:"average_password_strength"`
	HealthScore             int     `json:"health_score"`
}

// SecurityReportInput represents input for security_report tool.
type SecurityReportInput struct {
	IncludeIDs bool `json:"include_ids,omitempty" jsonschema:"include affected entry UUIDs"`
	Limit      int  `json:"limit,omitempty" jsonschema:"maximum issues per class; 0 means no limit"`
}

// SecurityReportOutput represents output for security_report tool.
type SecurityReportOutput struct {
	Score       int                      `json:"score"`
	Issues      []security.SecurityIssue `json:"issues"`
	Suggestions []string                 `json:"suggestions"`
	Limited     bool                     `json:"limited"`
}

// KdfInfoInput represents input for kdf_info tool.
type KdfInfoInput struct{}

// KdfInfoOutput represents output for kdf_info tool.
type KdfInfoOutput struct {
	KdfType     string  `json:"kdf_type"`
	IsWeak      bool    `json:"is_weak"`
	Iterations  *uint64 `json:"iterations,omitempty"`
	Memory      *uint64 `json:"memory,omitempty"`
	Parallelism *uint32 `json:"parallelism,omitempty"`
}

// PasswordGenerateInput represents input for password_generate tool.
// Unset fields fall back to the configured generator defaults.
type PasswordGenerateInput struct {
	Length    int    `json:"length,omitempty" jsonschema:"password length, 1 to 256"`
	Uppercase *bool  `json:"uppercase,omitempty"`
	Lowercase *bool  `json:"lowercase,omitempty"`
	Numbers   *bool  `json:"numbers,omitempty"`
	Symbols   *bool  `json:"symbols,omitempty"`
	Exclude   string `json:"exclude,omitempty" jsonschema:"characters to leave out"`
}

// PasswordGenerateOutput represents output for password_generate tool.
type PasswordGenerateOutput struct {
	Password string `json:"password"`
	Strength string `json:"strength"`
}

// EntryCreateInput represents input for entry_create tool.
type EntryCreateInput struct {
	Group     string `json:"group,omitempty" jsonschema:"group path or UUID; empty means the root group"`
	Title     string `json:"title"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Generate  bool   `json:"generate,omitempty" jsonschema:"generate the password with the configured generator"`
	URL       string `json:"url,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Tags      string `json:"tags,omitempty" jsonschema:"comma-separated tags"`
	Favorite  bool   `json:"favorite,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty" jsonschema:"UTC expiry as 2006-01-02T15:04"`
}

// EntryUpdateInput represents input for entry_update tool. Omitted fields
// keep their value.
type EntryUpdateInput struct {
	Entry     string  `json:"entry" jsonschema:"entry UUID or exact title"`
	Title     *string `json:"title,omitempty"`
	Username  *string `json:"username,omitempty"`
	Password  *string `json:"password,omitempty"`
	URL       *string `json:"url,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Tags      *string `json:"tags,omitempty"`
	Favorite  *bool   `json:"favorite,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty" jsonschema:"UTC expiry as 2006-01-02T15:04; empty clears it"`
}

// EntryRefInput represents input for entry_delete tool.
type EntryRefInput struct {
	Entry string `json:"entry" jsonschema:"entry UUID or exact title"`
}

// EntryMoveInput represents input for entry_move tool.
type EntryMoveInput struct {
	Entry string `json:"entry" jsonschema:"entry UUID or exact title"`
	Group string `json:"group" jsonschema:"destination group path or UUID"`
}

// GroupCreateInput represents input for group_create tool.
type GroupCreateInput struct {
	Path string `json:"path" jsonschema:"slash-separated path; the parent must exist"`
}

// GroupRenameInput represents input for group_rename tool.
type GroupRenameInput struct {
	Group string `json:"group" jsonschema:"group path or UUID"`
	Name  string `json:"name"`
}

// GroupRefInput represents input for group_delete tool.
type GroupRefInput struct {
	Group string `json:"group" jsonschema:"group path or UUID"`
}

// GroupMoveInput represents input for group_move tool.
type GroupMoveInput struct {
	Group  string `json:"group" jsonschema:"group path or UUID"`
	Parent string `json:"parent" jsonschema:"new parent group path or UUID; empty means the root group"`
}

// GroupReorderInput represents input for group_reorder tool.
type GroupReorderInput struct {
	Group string `json:"group" jsonschema:"group path or UUID"`
	Index int    `json:"index" jsonschema:"new position among its siblings; past the end means last"`
}

// AttachmentAddInput represents input for attachment_add tool.
type AttachmentAddInput struct {
	Entry   string `json:"entry" jsonschema:"entry UUID or exact title"`
	Key     string `json:"key" jsonschema:"attachment name; must not contain '.'"`
	Content string `json:"content" jsonschema:"attachment content, base64 encoded"`
}

// AttachmentRefInput represents input for attachment_get and
// attachment_delete tools.
type AttachmentRefInput struct {
	Entry string `json:"entry" jsonschema:"entry UUID or exact title"`
	Key   string `json:"key"`
}

// AttachmentGetOutput represents output for attachment_get tool.
type AttachmentGetOutput struct {
	Key     string `json:"key"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// MutationOutput is returned by tools that change the database.
type MutationOutput struct {
	UUID string `json:"uuid,omitempty"`
}

// MergeInput represents input for database_merge tool.
type MergeInput struct{}

// MergeOutput represents output for database_merge tool.
type MergeOutput struct {
	Changed bool `json:"changed"`
}

// registerTools registers all MCP tools with the server.
func (s *Server) registerTools() {
	addTool(s, &mcp.Tool{
		Name:        "group_list",
		Description: "List every group with its UUID and slash-separated path.",
	}, false, s.handleGroupList)
	addTool(s, &mcp.Tool{
		Name:        "entry_list",
		Description: "List entries with metadata. Does NOT return passwords.",
	}, false, s.handleEntryList)
	addTool(s, &mcp.Tool{
		Name:        "entry_search",
		Description: "Search entries by text. Does NOT return passwords.",
	}, false, s.handleEntrySearch)
	addTool(s, &mcp.Tool{
		Name:        "entry_get",
		Description: "Get one entry. The password is masked (e.g. '****WXYZ') unless the policy reveals passwords.",
	}, false, s.handleEntryGet)
	addTool(s, &mcp.Tool{
		Name:        "stats",
		Description: "Dashboard statistics and the 0-100 health score.",
	}, false, s.handleStats)
	addTool(s, &mcp.Tool{
		Name:        "security_report",
		Description: "Weak, reused, old and expired entries with suggestions.",
	}, false, s.handleSecurityReport)
	addTool(s, &mcp.Tool{
		Name:        "kdf_info",
		Description: "Key derivation parameters of the database and whether they are weak.",
	}, false, s.handleKdfInfo)
	addTool(s, &mcp.Tool{
		Name:        "password_generate",
		Description: "Generate a random password. Nothing is stored.",
	}, false, s.handlePasswordGenerate)

	addTool(s, &mcp.Tool{
		Name:        "entry_create",
		Description: "Create an entry and save the database.",
	}, true, s.handleEntryCreate)
	addTool(s, &mcp.Tool{
		Name:        "entry_update",
		Description: "Update fields of an entry and save the database. The previous version goes to the entry history.",
	}, true, s.handleEntryUpdate)
	addTool(s, &mcp.Tool{
		Name:        "entry_delete",
		Description: "Delete an entry and save the database.",
	}, true, s.handleEntryDelete)
	addTool(s, &mcp.Tool{
		Name:        "entry_move",
		Description: "Move an entry to another group and save the database.",
	}, true, s.handleEntryMove)
	addTool(s, &mcp.Tool{
		Name:        "group_create",
		Description: "Create a group and save the database.",
	}, true, s.handleGroupCreate)
	addTool(s, &mcp.Tool{
		Name:        "group_rename",
		Description: "Rename a group and save the database.",
	}, true, s.handleGroupRename)
	addTool(s, &mcp.Tool{
		Name:        "group_delete",
		Description: "Delete a group with all its subgroups and entries, then save the database.",
	}, true, s.handleGroupDelete)
	addTool(s, &mcp.Tool{
		Name:        "group_move",
		Description: "Move a group under another parent and save the database.",
	}, true, s.handleGroupMove)
	addTool(s, &mcp.Tool{
		Name:        "group_reorder",
		Description: "Move a group to another position among its siblings and save the database.",
	}, true, s.handleGroupReorder)
	addTool(s, &mcp.Tool{
		Name:        "attachment_get",
		Description: "Get the base64 content of an entry attachment. Requires a policy that reveals passwords.",
	}, false, s.handleAttachmentGet)
	addTool(s, &mcp.Tool{
		Name:        "attachment_add",
		Description: "Store a base64 encoded attachment on an entry, replacing one with the same key, and save the database.",
	}, true, s.handleAttachmentAdd)
	addTool(s, &mcp.Tool{
		Name:        "attachment_delete",
		Description: "Remove an attachment from an entry and save the database.",
	}, true, s.handleAttachmentDelete)
	addTool(s, &mcp.Tool{
		Name:        "database_merge",
		Description: "Merge changes another process wrote to the database file.",
	}, true, s.handleMerge)
}

func (s *Server) rootGroup() (vault.GroupData, error) {
	return app.Query(s.app, func(db *vault.Database) (vault.GroupData, error) {
		return db.RootGroup(), nil
	})
}

func (s *Server) resolveGroup(selector string) (vault.GroupData, error) {
	root, err := s.rootGroup()
	if err != nil {
		return vault.GroupData{}, err
	}
	return cli.ResolveGroup(root, selector)
}

func (s *Server) resolveEntry(selector string) (vault.EntryData, error) {
	if selector == "" {
		return vault.EntryData{}, errors.New("entry is required")
	}
	all, err := app.Query(s.app, func(db *vault.Database) ([]vault.EntryData, error) {
		return db.AllEntries(), nil
	})
	if err != nil {
		return vault.EntryData{}, err
	}
	return cli.ResolveEntry(selector, all)
}

func (s *Server) summaries(entries []vault.EntryData) (EntryListOutput, error) {
	root, err := s.rootGroup()
	if err != nil {
		return EntryListOutput{}, err
	}
	paths := cli.GroupPaths(root)

	out := EntryListOutput{Entries: make([]EntrySummary, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, summarize(e, paths))
	}
	return out, nil
}

func summarize(e vault.EntryData, paths map[string]string) EntrySummary {
	info := EntrySummary{
		UUID:        e.UUID,
		Title:       e.Title,
		Username:    e.Username,
		URL:         e.URL,
		Group:       paths[e.GroupUUID],
		Tags:        e.Tags,
		Favorite:    e.IsFavorite,
		Expires:     e.Expires,
		UsageCount:  e.UsageCount,
		HasPassword: e.Password != "",
	}
	if e.Modified != nil {
		info.Modified = *e.Modified
	}
	if e.ExpiryTime != nil {
		info.ExpiryTime = *e.ExpiryTime
	}
	return info
}

func (s *Server) handleGroupList(_ context.Context, _ *mcp.CallToolRequest, _ GroupListInput) (*mcp.CallToolResult, GroupListOutput, error) {
	root, err := s.rootGroup()
	if err != nil {
		return nil, GroupListOutput{}, err
	}
	paths := cli.GroupPaths(root)

	out := GroupListOutput{Groups: make([]GroupInfo, 0, len(paths))}
	var walk func(g vault.GroupData)
	walk = func(g vault.GroupData) {
		info := GroupInfo{UUID: g.UUID, Name: g.Name, Path: paths[g.UUID]}
		if g.ParentUUID != nil {
			info.ParentUUID = *g.ParentUUID
		}
		out.Groups = append(out.Groups, info)
		for _, c := range g.Children {
			walk(c)
		}
	}
	walk(root)
	return nil, out, nil
}

func (s *Server) handleEntryList(_ context.Context, _ *mcp.CallToolRequest, input EntryListInput) (*mcp.CallToolResult, EntryListOutput, error) {
	var groupID string
	if input.Group != "" {
		g, err := s.resolveGroup(input.Group)
		if err != nil {
			return nil, EntryListOutput{}, err
		}
		groupID = g.UUID
	}

	entries, err := app.Query(s.app, func(db *vault.Database) ([]vault.EntryData, error) {
		switch {
		case groupID != "":
			return db.EntriesInGroup(groupID)
		case input.Favorites:
			return db.FavoriteEntries(), nil
		default:
			return db.AllEntries(), nil
		}
	})
	if err != nil {
		return nil, EntryListOutput{}, err
	}
	if groupID != "" && input.Favorites {
		kept := entries[:0]
		for _, e := range entries {
			if e.IsFavorite {
				kept = append(kept, e)
			}
		}
		entries = kept
	}

	out, err := s.summaries(entries)
	return nil, out, err
}

func (s *Server) handleEntrySearch(_ context.Context, _ *mcp.CallToolRequest, input EntrySearchInput) (*mcp.CallToolResult, EntryListOutput, error) {
	var scope string
	if input.Group != "" {
		g, err := s.resolveGroup(input.Group)
		if err != nil {
			return nil, EntryListOutput{}, err
		}
		scope = g.UUID
	}

	entries, err := app.Query(s.app, func(db *vault.Database) ([]vault.EntryData, error) {
		return db.Search(input.Query, scope)
	})
	if err != nil {
		return nil, EntryListOutput{}, err
	}
	out, err := s.summaries(entries)
	return nil, out, err
}

func (s *Server) handleEntryGet(_ context.Context, _ *mcp.CallToolRequest, input EntryGetInput) (*mcp.CallToolResult, EntryGetOutput, error) {
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, EntryGetOutput{}, err
	}
	root, err := s.rootGroup()
	if err != nil {
		return nil, EntryGetOutput{}, err
	}

	reveal := s.policy.RevealPasswords
	out := EntryGetOutput{
		Entry:          summarize(e, cli.GroupPaths(root)),
		Password:       e.Password,
		PasswordMasked: !reveal,
		Strength:       security.CalculateStrength(e.Password).String(),
		Notes:          e.Notes,
		CustomFields:   make([]FieldInfo, 0, len(e.CustomFields)),
		Attachments:    make([]AttachmentInfo, 0, len(e.Attachments)),
		HistoryCount:   len(e.History),
	}
	if !reveal {
		out.Password = cli.Mask(e.Password)
	}
	for _, f := range e.CustomFields {
		v := f.Value
		if f.Protected && !reveal {
			v = cli.Mask(v)
		}
		out.CustomFields = append(out.CustomFields, FieldInfo{Name: f.Name, Value: v, Protected: f.Protected})
	}
	for _, a := range e.Attachments {
		out.Attachments = append(out.Attachments, AttachmentInfo{Key: a.Key, Size: len(a.Data)})
	}
	return nil, out, nil
}

func (s *Server) handleStats(_ context.Context, _ *mcp.CallToolRequest, _ StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	st, err := s.app.Stats()
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		TotalEntries:            st.TotalEntries,
		TotalGroups:             st.TotalGroups,
		WeakPasswords:           st.WeakPasswords,
		ReusedPasswords:         st.ReusedPasswords,
		OldPasswords:            st.OldPasswords,
		ExpiredEntries:          st.ExpiredEntries,
		FavoriteEntries:         st.FavoriteEntries,
		AveragePasswordStrength: st.AveragePasswordStrength,
		HealthScore:             st.HealthScore,
	}, nil
}

func (s *Server) handleSecurityReport(_ context.Context, _ *mcp.CallToolRequest, input SecurityReportInput) (*mcp.CallToolResult, SecurityReportOutput, error) {
	if input.Limit < 0 {
		return nil, SecurityReportOutput{}, errors.New("limit must not be negative")
	}
	r, err := app.Query(s.app, func(db *vault.Database) (*security.Report, error) {
		return db.Report(input.IncludeIDs, input.Limit)
	})
	if err != nil {
		return nil, SecurityReportOutput{}, err
	}
	out := SecurityReportOutput{
		Score:       r.Score,
		Issues:      r.Issues,
		Suggestions: r.Suggestions,
		Limited:     r.Limited,
	}
	if out.Issues == nil {
		out.Issues = []security.SecurityIssue{}
	}
	if out.Suggestions == nil {
		out.Suggestions = []string{}
	}
	return nil, out, nil
}

func (s *Server) handleKdfInfo(_ context.Context, _ *mcp.CallToolRequest, _ KdfInfoInput) (*mcp.CallToolResult, KdfInfoOutput, error) {
	info, err := app.Query(s.app, func(db *vault.Database) (vault.KdfInfo, error) {
		return db.KdfInfo(), nil
	})
	if err != nil {
		return nil, KdfInfoOutput{}, err
	}
	return nil, KdfInfoOutput(info), nil
}

func (s *Server) generatorOptions(input PasswordGenerateInput) passgen.Options {
	o := s.gen
	if input.Length != 0 {
		o.Length = input.Length
	}
	for _, f := range []struct {
		in  *bool
		out *bool
	}{
		{input.Uppercase, &o.Uppercase},
		{input.Lowercase, &o.Lowercase},
		{input.Numbers, &o.Numbers},
		{input.Symbols, &o.Symbols},
	} {
		if f.in != nil {
			*f.out = *f.in
		}
	}
	if input.Exclude != "" {
		o.Exclude = input.Exclude
	}
	return o
}

func (s *Server) handlePasswordGenerate(_ context.Context, _ *mcp.CallToolRequest, input PasswordGenerateInput) (*mcp.CallToolResult, PasswordGenerateOutput, error) {
	pw, err := passgen.Generate(s.generatorOptions(input))
	if err != nil {
		return nil, PasswordGenerateOutput{}, err
	}
	return nil, PasswordGenerateOutput{
		Password: pw,
		Strength: security.CalculateStrength(pw).String(),
	}, nil
}

func (s *Server) handleEntryCreate(_ context.Context, _ *mcp.CallToolRequest, input EntryCreateInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.Title == "" {
		return nil, MutationOutput{}, errors.New("title is required")
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}

	password := input.Password
	if input.Generate {
		if password, err = passgen.Generate(s.gen); err != nil {
			return nil, MutationOutput{}, err
		}
	}

	data := vault.EntryData{
		GroupUUID:  g.UUID,
		Title:      input.Title,
		Username:   input.Username,
		Password:   password,
		URL:        input.URL,
		Notes:      input.Notes,
		Tags:       input.Tags,
		IsFavorite: input.Favorite,
	}
	if err := setExpiry(&data, input.ExpiresAt); err != nil {
		return nil, MutationOutput{}, err
	}

	id, err := s.app.CreateEntry(data)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: id}, nil
}

func setExpiry(data *vault.EntryData, s string) error {
	if s == "" {
		data.Expires = false
		data.ExpiryTime = nil
		return nil
	}
	if _, ok := vault.ParseExpiry(s); !ok {
		return errors.New("expires_at must look like 2006-01-02T15:04")
	}
	data.Expires = true
	data.ExpiryTime = &s
	return nil
}

func (s *Server) handleEntryUpdate(_ context.Context, _ *mcp.CallToolRequest, input EntryUpdateInput) (*mcp.CallToolResult, MutationOutput, error) {
	target, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, MutationOutput{}, err
	}

	e, err := s.app.EditEntry(target.UUID, func(e *vault.EntryData) error {
		for _, f := range []struct {
			in  *string
			out *string
		}{
			{input.Title, &e.Title},
			{input.Username, &e.Username},
			{input.Password, &e.Password},
			{input.URL, &e.URL},
			{input.Notes, &e.Notes},
			{input.Tags, &e.Tags},
		} {
			if f.in != nil {
				*f.out = *f.in
			}
		}
		if input.Favorite != nil {
			e.IsFavorite = *input.Favorite
		}
		if input.ExpiresAt != nil {
			return setExpiry(e, *input.ExpiresAt)
		}
		return nil
	})
	if err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: e.UUID}, nil
}

func (s *Server) handleEntryDelete(_ context.Context, _ *mcp.CallToolRequest, input EntryRefInput) (*mcp.CallToolResult, MutationOutput, error) {
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.DeleteEntry(e.UUID); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: e.UUID}, nil
}

func (s *Server) handleEntryMove(_ context.Context, _ *mcp.CallToolRequest, input EntryMoveInput) (*mcp.CallToolResult, MutationOutput, error) {
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.MoveEntry(e.UUID, g.UUID); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: e.UUID}, nil
}

func (s *Server) handleGroupCreate(_ context.Context, _ *mcp.CallToolRequest, input GroupCreateInput) (*mcp.CallToolResult, MutationOutput, error) {
	parentPath, name := cli.SplitParent(input.Path)
	if name == "" {
		return nil, MutationOutput{}, errors.New("path is required")
	}
	parent, err := s.resolveGroup(parentPath)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	id, err := s.app.CreateGroup(name, parent.UUID, nil)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: id}, nil
}

func (s *Server) handleGroupRename(_ context.Context, _ *mcp.CallToolRequest, input GroupRenameInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.Name == "" {
		return nil, MutationOutput{}, errors.New("name is required")
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.RenameGroup(g.UUID, input.Name, nil); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: g.UUID}, nil
}

func (s *Server) handleGroupDelete(_ context.Context, _ *mcp.CallToolRequest, input GroupRefInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.Group == "" {
		return nil, MutationOutput{}, errors.New("group is required")
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.DeleteGroup(g.UUID); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: g.UUID}, nil
}

func (s *Server) handleGroupMove(_ context.Context, _ *mcp.CallToolRequest, input GroupMoveInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.Group == "" {
		return nil, MutationOutput{}, errors.New("group is required")
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	parent, err := s.resolveGroup(input.Parent)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.MoveGroup(g.UUID, parent.UUID); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: g.UUID}, nil
}

func (s *Server) handleGroupReorder(_ context.Context, _ *mcp.CallToolRequest, input GroupReorderInput) (*mcp.CallToolResult, MutationOutput, error) {
	if input.Group == "" {
		return nil, MutationOutput{}, errors.New("group is required")
	}
	if input.Index < 0 {
		return nil, MutationOutput{}, errors.New("index must not be negative")
	}
	g, err := s.resolveGroup(input.Group)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.ReorderGroup(g.UUID, input.Index); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: g.UUID}, nil
}

func (s *Server) handleAttachmentGet(_ context.Context, _ *mcp.CallToolRequest, input AttachmentRefInput) (*mcp.CallToolResult, AttachmentGetOutput, error) {
	if !s.policy.RevealPasswords {
		return nil, AttachmentGetOutput{}, errors.New("attachment content is hidden: the policy does not reveal passwords")
	}
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, AttachmentGetOutput{}, err
	}
	data, err := app.Query(s.app, func(db *vault.Database) ([]byte, error) {
		return db.Attachment(e.UUID, input.Key)
	})
	if err != nil {
		return nil, AttachmentGetOutput{}, err
	}
	return nil, AttachmentGetOutput{
		Key:     input.Key,
		Size:    len(data),
		Content: base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (s *Server) handleAttachmentAdd(_ context.Context, _ *mcp.CallToolRequest, input AttachmentAddInput) (*mcp.CallToolResult, MutationOutput, error) {
	if base64.StdEncoding.DecodedLen(len(input.Content)) > maxAttachmentSize {
		return nil, MutationOutput{}, fmt.Errorf("attachment too large (max %d bytes)", maxAttachmentSize)
	}
	data, err := base64.StdEncoding.DecodeString(input.Content)
	if err != nil {
		return nil, MutationOutput{}, fmt.Errorf("content is not valid base64: %w", err)
	}
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.AddAttachment(e.UUID, input.Key, data); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: e.UUID}, nil
}

func (s *Server) handleAttachmentDelete(_ context.Context, _ *mcp.CallToolRequest, input AttachmentRefInput) (*mcp.CallToolResult, MutationOutput, error) {
	e, err := s.resolveEntry(input.Entry)
	if err != nil {
		return nil, MutationOutput{}, err
	}
	if err := s.app.DeleteAttachment(e.UUID, input.Key); err != nil {
		return nil, MutationOutput{}, err
	}
	return nil, MutationOutput{UUID: e.UUID}, nil
}

func (s *Server) handleMerge(_ context.Context, _ *mcp.CallToolRequest, _ MergeInput) (*mcp.CallToolResult, MergeOutput, error) {
	changed, err := s.app.CheckForChanges()
	if err != nil || !changed {
		return nil, MergeOutput{}, err
	}
	if err := s.app.Merge(); err != nil {
		return nil, MergeOutput{}, err
	}
	return nil, MergeOutput{Changed: true}, nil
}
