package server

import (
	"html/template"

	"mdhl/internal/hl"
)

// pageData feeds the page template for both the index and document views.
type pageData struct {
	Title      string
	Path       string // root-relative path of the viewed file; "" on the index
	Content    template.HTML
	Tree       []TreeEntry
	Highlights []*hl.Highlight
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body { margin: 0; display: flex; font-family: -apple-system, "Segoe UI", sans-serif; color: #1f2328; }
  nav { width: 260px; min-height: 100vh; border-right: 1px solid #d1d9e0; padding: 1rem 0; background: #f6f8fa; }
  nav a { display: block; padding: 0.15rem 1rem; color: #1f2328; text-decoration: none; font-size: 0.875rem; }
  nav a:hover { background: #eaeef2; }
  nav a.active { font-weight: 600; }
  main { flex: 1; max-width: 860px; padding: 2rem 3rem; }
  main pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; border-radius: 6px; }
  main blockquote { border-left: 4px solid #d1d9e0; margin-left: 0; padding-left: 1rem; color: #59636e; }
  mark.hl { background: #fff8c5; }
  mark.hl.stale { background: #ffebe9; text-decoration: underline dotted; }
  #hl-list { margin-top: 3rem; border-top: 1px solid #d1d9e0; padding-top: 1rem; font-size: 0.875rem; }
  #hl-list .stale-tag { color: #d1242f; margin-left: 0.5rem; }
</style>
</head>
<body>
<nav>
{{range .Tree}}<a href="/view/{{.RelPath}}" style="padding-left: calc(1rem + {{.Depth}} * 0.75rem)"{{if eq .RelPath $.Path}} class="active"{{end}}>{{.Name}}</a>
{{end}}</nav>
<main>
{{if .Path}}{{.Content}}
<section id="hl-list">
<h3>Highlights</h3>
{{range .Highlights}}<p data-id="{{.ID}}"><q>{{.Text}}</q>{{if .IsStale}}<span class="stale-tag">stale</span>{{end}}{{if .Notes}} &mdash; {{.Notes}}{{end}}</p>
{{else}}<p>None yet. Select text to highlight it.</p>{{end}}
</section>
{{else}}<h1>{{.Title}}</h1><p>Select a document from the sidebar.</p>{{end}}
</main>
{{if .Path}}<script>
(function () {
  var path = {{.Path}};
  document.querySelector("main").addEventListener("mouseup", function () {
    var sel = window.getSelection();
    var text = sel ? sel.toString() : "";
    if (text.trim().length < 3) return;
    if (!window.confirm("Highlight selected text?")) return;
    fetch("/api/highlights", {
      method: "POST",
      headers: { "Content-Type": "application/json" },
      body: JSON.stringify({ path: path, text: text, occurrence: 0 })
    }).then(function (res) {
      if (res.ok) window.location.reload();
    });
  });
})();
</script>{{end}}
</body>
</html>
`
