package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Dicklesworthstone/mcp-agent-mail-go/internal/errs"
)

// CommitSummary is one row of the recent-activity view.
type CommitSummary struct {
	MessageID int64
	Subject   string
	CreatedAtUsec int64
}

// TreeNode is one entry in a project's directory-tree listing.
type TreeNode struct {
	Name     string
	IsDir    bool
	Children []TreeNode
}

// CommunicationEdge is one observed sender->recipient relationship,
// with a count of messages exchanged.
type CommunicationEdge struct {
	From  string
	To    string
	Count int
}

// RecentCommits returns the n most recently written message bundles
// for projectSlug, newest first.
func (a *Archive) RecentCommits(projectSlug string, n int) ([]CommitSummary, error) {
	messagesDir := filepath.Join(a.projectDir(projectSlug), "messages")
	entries, err := os.ReadDir(messagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(err, errs.Internal, "archive: list messages dir")
	}

	var summaries []CommitSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), ".json")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		envelope, err := readEnvelope(filepath.Join(messagesDir, e.Name()))
		if err != nil {
			continue
		}
		subject, _ := envelope["subject"].(string)
		createdRaw, _ := envelope["created_at_usec"].(float64)
		summaries = append(summaries, CommitSummary{
			MessageID:     id,
			Subject:       subject,
			CreatedAtUsec: int64(createdRaw),
		})
	}

	sort.Slice(summaries, func(i, j int) bool { return summaries[i].CreatedAtUsec > summaries[j].CreatedAtUsec })
	if n > 0 && len(summaries) > n {
		summaries = summaries[:n]
	}
	return summaries, nil
}

// Timeline returns every commit summary for projectSlug in chronological order.
func (a *Archive) Timeline(projectSlug string) ([]CommitSummary, error) {
	all, err := a.RecentCommits(projectSlug, 0)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAtUsec < all[j].CreatedAtUsec })
	return all, nil
}

// DirectoryTree lists the bundle tree under projectSlug/relPath.
func (a *Archive) DirectoryTree(projectSlug, relPath string) (*TreeNode, error) {
	root := filepath.Join(a.projectDir(projectSlug), relPath)
	return buildTree(root)
}

func buildTree(path string) (*TreeNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.NotFound, "archive: path not found")
	}

	node := &TreeNode{Name: filepath.Base(path), IsDir: info.IsDir()}
	if !info.IsDir() {
		return node, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "archive: read directory")
	}
	for _, e := range entries {
		child, err := buildTree(filepath.Join(path, e.Name()))
		if err != nil {
			continue
		}
		node.Children = append(node.Children, *child)
	}
	return node, nil
}

// CommunicationGraph scans every message envelope for projectSlug and
// aggregates sender->recipient edges. This is a supplemented feature
// (not in the distilled spec) materialized on demand, never held as a
// long-lived owned graph (spec.md §9's cyclic-graph design note).
func (a *Archive) CommunicationGraph(projectSlug string) ([]CommunicationEdge, error) {
	messagesDir := filepath.Join(a.projectDir(projectSlug), "messages")
	entries, err := os.ReadDir(messagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(err, errs.Internal, "archive: list messages dir")
	}

	counts := make(map[[2]string]int)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		envelope, err := readEnvelope(filepath.Join(messagesDir, e.Name()))
		if err != nil {
			continue
		}
		sender, _ := envelope["sender"].(string)
		recipients, _ := envelope["recipients"].([]any)
		for _, r := range recipients {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			agent, _ := rm["agent"].(string)
			if agent == "" || sender == "" {
				continue
			}
			counts[[2]string{sender, agent}]++
		}
	}

	edges := make([]CommunicationEdge, 0, len(counts))
	for pair, count := range counts {
		edges = append(edges, CommunicationEdge{From: pair[0], To: pair[1], Count: count})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges, nil
}

// InboxSnapshot reconstructs which messages were visible to agent at
// historical time asOfUsec: every message addressed to agent with
// created_at_usec <= asOfUsec. This is a supplemented feature (spec.md
// §9 calls for a "historical inbox snapshot at timestamp t").
func (a *Archive) InboxSnapshot(projectSlug, agent string, asOfUsec int64) ([]CommitSummary, error) {
	messagesDir := filepath.Join(a.projectDir(projectSlug), "messages")
	entries, err := os.ReadDir(messagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(err, errs.Internal, "archive: list messages dir")
	}

	var out []CommitSummary
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		envelope, err := readEnvelope(filepath.Join(messagesDir, e.Name()))
		if err != nil {
			continue
		}
		createdRaw, _ := envelope["created_at_usec"].(float64)
		created := int64(createdRaw)
		if created > asOfUsec {
			continue
		}
		recipients, _ := envelope["recipients"].([]any)
		addressed := false
		for _, r := range recipients {
			rm, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if name, _ := rm["agent"].(string); name == agent {
				addressed = true
				break
			}
		}
		if !addressed {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), ".json")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		subject, _ := envelope["subject"].(string)
		out = append(out, CommitSummary{MessageID: id, Subject: subject, CreatedAtUsec: created})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtUsec < out[j].CreatedAtUsec })
	return out, nil
}

func readEnvelope(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(err, errs.Internal, "archive: read envelope")
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, errs.Wrap(err, errs.Internal, "archive: parse envelope")
	}
	return out, nil
}
