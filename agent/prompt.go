package agent

import "fmt"

// systemPrompt is shared by the LLM planners.
const systemPrompt = `You are a web security expert with access to browser automation tools.

Tool input rules:
1. scrape_page: query must be "scrape"
2. input_textbox: query must be "selector,text"
3. click_button: query must be the CSS selector
4. sql_injection_test: query must be "username_selector,password_selector"
5. xss_test: query must be the CSS selector of the input field
Never send None, null or empty values as a query.

When you are done, reply without calling a tool. Your final reply MUST be a JSON array of vulnerabilities and nothing else, for example:
[
  {
    "severity": "HIGH",
    "type": "SQL Injection",
    "title": "Authentication Bypass via SQL Injection",
    "description": "The login form is vulnerable to SQL injection attacks. Using the payload ' OR 1=1-- in the password field successfully bypassed authentication."
  },
  {
    "severity": "MEDIUM",
    "type": "XSS",
    "title": "Reflected Cross-Site Scripting",
    "description": "The search input field reflects user input without proper encoding, allowing script execution."
  }
]
Reply with [] when nothing was found.`

const finalAnswerPrompt = "The tool call limit has been reached. Reply now with your final answer as a JSON array of vulnerabilities."

func initialPrompt(targetURL string) string {
	return fmt.Sprintf(`You are testing the login page at %s for vulnerabilities.

Follow these steps systematically:
1. Use scrape_page to understand the page structure.
2. Identify form fields (username/password inputs and other input fields) and their selectors.
3. Use xss_test on ALL input fields first.
4. Use sql_injection_test on the login form.
5. If sql_injection_test does not work, test manually: input_textbox "selector,admin" for the username, input_textbox "selector,' OR 1=1--" for the password, then click_button to submit.
6. Use scrape_page again to check whether the login succeeded.
7. Look for signs of a successful login (welcome messages, dashboard, different URL).
8. Report whether XSS or SQL injection vulnerabilities were detected.

Begin your assessment now.`, targetURL)
}
