package page

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var errSkipRegion = errors.New("mount not in region")

// SetMountHTML replaces the children of the element whose id is mountID
// with fragment. The first region containing such an element is rewritten.
func (d *Document) SetMountHTML(mountID, fragment string) error {
	needle := `id="` + html.EscapeString(mountID) + `"`

	for _, r := range d.Regions() {
		if !strings.Contains(r.HTML(), needle) {
			continue
		}

		err := r.Update(func(current string) (string, error) {
			return replaceMountChildren(current, mountID, fragment)
		})
		if errors.Is(err, errSkipRegion) {
			continue
		}
		if err != nil {
			return fmt.Errorf("mount %q in region %q: %w", mountID, r.ID(), err)
		}
		return nil
	}

	return fmt.Errorf("%w: %s", ErrMountNotFound, mountID)
}

// MountHTML returns the inner markup of the element whose id is mountID.
func (d *Document) MountHTML(mountID string) (string, error) {
	for _, r := range d.Regions() {
		nodes, err := parseFragment(r.HTML())
		if err != nil {
			return "", err
		}
		for _, n := range nodes {
			if el := findByID(n, mountID); el != nil {
				var buf bytes.Buffer
				for c := el.FirstChild; c != nil; c = c.NextSibling {
					if err := html.Render(&buf, c); err != nil {
						return "", err
					}
				}
				return buf.String(), nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMountNotFound, mountID)
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func parseFragment(markup string) ([]*html.Node, error) {
	return html.ParseFragment(strings.NewReader(markup), bodyContext())
}

func replaceMountChildren(markup, mountID, fragment string) (string, error) {
	nodes, err := parseFragment(markup)
	if err != nil {
		return "", err
	}

	var mount *html.Node
	for _, n := range nodes {
		if mount = findByID(n, mountID); mount != nil {
			break
		}
	}
	if mount == nil {
		return "", errSkipRegion
	}

	children, err := html.ParseFragment(strings.NewReader(fragment), mount)
	if err != nil {
		return "", err
	}

	for c := mount.FirstChild; c != nil; {
		next := c.NextSibling
		mount.RemoveChild(c)
		c = next
	}
	for _, c := range children {
		mount.AppendChild(c)
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Namespace == "" && a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
