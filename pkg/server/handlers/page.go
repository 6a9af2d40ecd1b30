package handlers

import "html/template"

// IndexTemplate is the name the question page is registered under.
const IndexTemplate = "index"

// NewIndexTemplate parses the question page.
func NewIndexTemplate() *template.Template {
	return template.Must(template.New(IndexTemplate).Parse(indexHTML))
}

// pageData is rendered by the question page.
type pageData struct {
	Question   string
	Strategy   string
	Strategies []string
	Answer     string
	Cypher     string
	Context    string
	Failed     bool
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Service History Assistant</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; }
textarea { width: 100%; }
pre { background: #f4f4f4; padding: 0.75rem; white-space: pre-wrap; }
.error { color: #a40000; }
</style>
</head>
<body>
<h1>Service History Assistant</h1>
<form method="post" action="/ask">
<label for="question">Question</label>
<textarea id="question" name="question" rows="4" required>{{.Question}}</textarea>
<fieldset>
<legend>Strategy</legend>
{{range .Strategies}}<label><input type="radio" name="strategy" value="{{.}}"{{if eq . $.Strategy}} checked{{end}}> {{.}}</label>
{{end}}</fieldset>
<button type="submit">Ask</button>
</form>
{{if .Answer}}
<h2>Answer</h2>
<pre{{if .Failed}} class="error"{{end}}>{{.Answer}}</pre>
{{end}}
{{if .Cypher}}
<h3>Cypher</h3>
<pre>{{.Cypher}}</pre>
{{end}}
{{if .Context}}
<h3>Context</h3>
<pre>{{.Context}}</pre>
{{end}}
</body>
</html>
`
