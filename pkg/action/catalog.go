package action

import "github.com/entrhq/testpilot/pkg/prompts"

// Catalog describes the built-in actions for the resolver prompt.
func Catalog() []prompts.ActionSpec {
	return []prompts.ActionSpec{
		{Name: ExtractURL, Params: []string{"url"},
			Description: "Remember the page the user wants to test."},
		{Name: CreateEmbeddings, Params: []string{"url"},
			Description: "Fetch and index the page so later steps can use its content. Safe to repeat."},
		{Name: ListDomainPages, Params: []string{"url"},
			Description: "List the pages already indexed for the site."},
		{Name: GetRelevantEmbeddings, Params: []string{"query", "url", "max_distance", "max_results"},
			Description: "Look up indexed page content related to a question."},
		{Name: GenerateTestCases, Params: []string{"requirements"},
			Description: "Design test cases for the current page."},
		{Name: GenerateTestCode, Description: "Write pytest + Playwright code for the first pending test case."},
		{Name: ExecuteTest, Params: []string{"python_code", "test_name", "url"},
			Description: "Run the given test code, repairing it automatically when it fails."},
		{Name: ExecuteTests, Params: []string{"test_name", "url"},
			Description: "Run the generated test code of this session, repairing it automatically when it fails."},
		{Name: AnalyzeFailure, Description: "Explain why the last test run failed."},
		{Name: ModifyTest, Params: []string{"instructions"}, Description: "Change an existing test."},
		{Name: ShowResults, Description: "Summarize the session and the last test run."},
		{Name: ClearSession, Description: "Forget the current page, test cases and results."},
		{Name: NoAction, Description: "Just reply, nothing to do."},
	}
}
