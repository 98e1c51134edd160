package parser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"

	"helpcenter-rag/internal/helper"
)

const (
	minAltChars          = 6
	maxAltChars          = 160
	maxSurroundingChars  = 600
	defaultMinPixels     = 80
	imageDescriptionText = "[Image description: %s]"
	imagePlaceholderText = "[Image]"
)

var (
	decorativeRuleRe = regexp.MustCompile(`(?m)^[ \t]*(\* ?\* ?\*|\*{3,}|-{3,}|_{3,})[ \t]*$`)

	decorativeKeywords = []string{
		"placeholder", "icon", "logo", "sprite", "spacer", "1x1", "pixel",
		"tracking", "blank", "transparent", "spinner", "loader", "badge", "emoji",
	}

	blockTags = map[string]bool{
		"p": true, "li": true, "td": true, "th": true, "div": true,
		"section": true, "figure": true, "blockquote": true, "article": true,
	}
)

// ImageDescriber turns an image into a short caption. An empty caption with a
// nil error means the image should be dropped.
type ImageDescriber interface {
	Describe(ctx context.Context, imageURL, surroundingText string) (string, error)
}

// Image is what the decorative predicate gets to look at.
type Image struct {
	Src        string
	Alt        string
	Width      int
	Height     int
	InHeading  bool
	Role       string
	AriaHidden bool
}

// DecorativePredicate reports whether an image carries no content.
type DecorativePredicate func(img Image) bool

// DefaultDecorative drops images inside headings, images marked presentational,
// images declared smaller than minPixels, animated GIFs and URLs that look
// like icons, logos or tracking pixels.
func DefaultDecorative(minPixels int) DecorativePredicate {
	return func(img Image) bool {
		if img.InHeading || img.AriaHidden || img.Role == "presentation" || img.Role == "none" {
			return true
		}
		if (img.Width > 0 && img.Width < minPixels) || (img.Height > 0 && img.Height < minPixels) {
			return true
		}
		src := strings.ToLower(img.Src)
		if strings.HasSuffix(strings.SplitN(src, "?", 2)[0], ".gif") {
			return true
		}
		for _, kw := range decorativeKeywords {
			if strings.Contains(src, kw) {
				return true
			}
		}
		return false
	}
}

// Normalizer converts article HTML into markdown with images resolved to text.
type Normalizer struct {
	describer  ImageDescriber
	decorative DecorativePredicate
	logger     zerolog.Logger
}

type Option func(*Normalizer)

// WithDecorativePredicate replaces the default decorative image rule.
func WithDecorativePredicate(p DecorativePredicate) Option {
	return func(n *Normalizer) {
		n.decorative = p
	}
}

// NewNormalizer creates a normalizer. A nil describer drops every image
// that has no usable alt text.
func NewNormalizer(describer ImageDescriber, opts ...Option) *Normalizer {
	n := &Normalizer{
		describer:  describer,
		decorative: DefaultDecorative(defaultMinPixels),
		logger:     log.With().Str("component", "normalizer").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize returns the markdown form of rawHTML. Headings, lists, emphasis
// and links survive; decorative rules and emoji do not.
func (n *Normalizer) Normalize(ctx context.Context, rawHTML string) (string, error) {
	if strings.TrimSpace(rawHTML) == "" {
		return "", nil
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	replacements := n.resolveImages(ctx, doc)

	md, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	out := string(md)
	for token, text := range replacements {
		out = strings.ReplaceAll(out, token, text)
	}
	return cleanVisualNoise(out), nil
}

// resolveImages swaps every <img> for a text token or removes it. Tokens are
// substituted after conversion so the markdown writer does not escape them.
func (n *Normalizer) resolveImages(ctx context.Context, doc *html.Node) map[string]string {
	var images []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "img" {
			images = append(images, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	replacements := make(map[string]string)
	for i, node := range images {
		text := n.describeImage(ctx, node)
		if text == "" {
			node.Parent.RemoveChild(node)
			continue
		}
		token := fmt.Sprintf("HCRAGIMAGE%dX", i)
		replacements[token] = text
		node.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: token}, node)
		node.Parent.RemoveChild(node)
	}
	return replacements
}

func (n *Normalizer) describeImage(ctx context.Context, node *html.Node) string {
	img := imageInfo(node)
	if img.Src == "" {
		return ""
	}
	if n.decorative != nil && n.decorative(img) {
		n.logger.Debug().Str("src", img.Src).Msg("Dropping decorative image")
		return ""
	}

	alt := strings.Join(strings.Fields(img.Alt), " ")
	if l := len([]rune(alt)); l >= minAltChars && l <= maxAltChars {
		return fmt.Sprintf(imageDescriptionText, alt)
	}

	if n.describer == nil {
		return ""
	}

	desc, err := n.describer.Describe(ctx, img.Src, surroundingText(node))
	if err != nil {
		n.logger.Warn().Err(err).Str("src", img.Src).Msg("Image description failed, using placeholder")
		return imagePlaceholderText
	}
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return ""
	}
	return fmt.Sprintf(imageDescriptionText, desc)
}

func imageInfo(node *html.Node) Image {
	img := Image{
		Src:        strings.TrimSpace(attr(node, "src")),
		Alt:        attr(node, "alt"),
		Width:      pixels(attr(node, "width")),
		Height:     pixels(attr(node, "height")),
		Role:       strings.ToLower(attr(node, "role")),
		AriaHidden: strings.EqualFold(attr(node, "aria-hidden"), "true"),
	}
	for p := node.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && len(p.Data) == 2 && p.Data[0] == 'h' && p.Data[1] >= '1' && p.Data[1] <= '6' {
			img.InHeading = true
			break
		}
	}
	return img
}

func attr(node *html.Node, key string) string {
	for _, a := range node.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func pixels(v string) int {
	v = strings.TrimSuffix(strings.TrimSpace(v), "px")
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// surroundingText collects the text of the closest block ancestor.
func surroundingText(node *html.Node) string {
	block := node.Parent
	for block != nil && !(block.Type == html.ElementNode && blockTags[block.Data]) {
		block = block.Parent
	}
	if block == nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(block)

	return helper.TruncateWords(strings.Join(strings.Fields(sb.String()), " "), maxSurroundingChars)
}

func cleanVisualNoise(md string) string {
	md = decorativeRuleRe.ReplaceAllString(md, "")
	md = helper.StripEmoji(md)
	md = helper.CollapseBlankLines(md)
	return strings.TrimSpace(md)
}
