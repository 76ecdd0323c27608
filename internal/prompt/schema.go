package prompt

// Response schemas in the OpenAPI subset accepted by structured-output
// generation endpoints.

const changeSchema = `{
  "type": "ARRAY",
  "items": {
    "type": "OBJECT",
    "properties": {
      "itemId": {"type": "STRING"},
      "status": {"type": "STRING", "enum": ["ACCEPTED", "ADDRESSED", "NOT_ACTIONED", "NO_LONGER_RELEVANT", "UNKNOWN"]},
      "explanation": {"type": "STRING"},
      "scoring": {
        "type": "OBJECT",
        "properties": {
          "implication": {"type": "STRING", "enum": ["Clarification", "Editorial", "Change", "Significant Change"]},
          "alignment": {"type": "INTEGER"},
          "feasibility": {"type": "INTEGER"},
          "futureAcceptance": {"type": "INTEGER"},
          "authorAcceptability": {"type": "INTEGER"}
        },
        "required": ["implication", "alignment", "feasibility", "futureAcceptance", "authorAcceptability"]
      }
    },
    "required": ["itemId", "status", "explanation", "scoring"]
  }
}`

const commentarySchema = `{
  "type": "OBJECT",
  "properties": {
    "successPatterns": {"type": "STRING"},
    "toneAnalysis": {"type": "STRING"},
    "contributorInsights": {"type": "STRING"},
    "otherInsights": {"type": "STRING"}
  },
  "required": ["successPatterns", "toneAnalysis", "contributorInsights", "otherInsights"]
}`

const diffSchema = `{
  "type": "OBJECT",
  "properties": {
    "summary": {"type": "STRING"},
    "keyChanges": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "title": {"type": "STRING"},
          "description": {"type": "STRING"},
          "impact": {"type": "STRING"}
        }
      }
    },
    "strategicShifts": {"type": "STRING"},
    "riskProfile": {"type": "STRING"},
    "outstandingIssues": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "issue": {"type": "STRING"},
          "severity": {"type": "STRING", "enum": ["High", "Medium", "Low"]},
          "remediation": {"type": "STRING"}
        }
      }
    },
    "stakeholderPriorities": {
      "type": "ARRAY",
      "items": {
        "type": "OBJECT",
        "properties": {
          "stakeholder": {"type": "STRING"},
          "primaryConcerns": {"type": "STRING"},
          "outcomeSummary": {"type": "STRING"},
          "projectedWants": {"type": "STRING"}
        }
      }
    }
  },
  "required": ["summary", "keyChanges", "strategicShifts", "riskProfile", "outstandingIssues", "stakeholderPriorities"]
}`
