package session

// WelcomePage returns the onboarding page rendered for about:welcome. It is
// served from memory so the one non-web scheme never touches the network.
func WelcomePage() string {
	return `<!DOCTYPE html>
<html>
<head><title>browsegate</title></head>
<body>
<h1>browsegate</h1>
<p>This browser session is supervised. Every action is classified by risk,
gated by the configured approval policy, and recorded in a tamper-evident
audit log.</p>
<ul>
<li>Read-only actions run without prompting.</li>
<li>Form interaction and authentication require approval.</li>
<li>Destructive actions require a second factor.</li>
</ul>
<p>The session ends automatically when its time budget runs out.</p>
</body>
</html>`
}
