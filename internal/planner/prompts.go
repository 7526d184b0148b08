package planner

// Prompt templates for every model task. All of them demand bare JSON; the
// fence-stripping in llm.UnmarshalResponse covers models that wrap anyway.

const preferenceExtractionPrompt = `A family member just sent a message about dinner preferences.

Family member: %s (%s)
Message: "%s"

Known preferences for this person:
%s

Extract any food preferences, dislikes, dietary needs, or specific dinner wishes.
Return valid JSON only (no markdown fencing):

{
  "preferences": [
    {
      "category": "likes|dislikes|allergy|dietary|cuisine_preference|general",
      "detail": "description of the preference",
      "confidence": 0.0-1.0
    }
  ],
  "specific_wishes": ["concrete dinner requests for this week"],
  "has_food_content": true
}

Set "has_food_content" to false if the message has nothing to do with food preferences.
Return empty arrays if nothing food-related was expressed.`

const mealPlanPrompt = `Generate a %d-day dinner plan starting from %s.

## Family members
%s

## This week's specific requests
%s

## Known preferences per member
%s

## Recent meals (last 3 weeks, avoid repeats)
%s

## Rules
- Vary cuisines across the week (no same cuisine on consecutive days)
- Vary main proteins (no same protein two days in a row)
- Include at least one vegetarian meal
- At least 2 meals should be kid-friendly (simple flavors, familiar formats)
- Mix quick meals (< 30 min) with more elaborate ones
- Ingredients must be commonly available at a Dutch supermarket (Picnic)
- Use metric units and Dutch ingredient names (for Picnic supermarket search)
- Write recipe names, descriptions, and instructions in %s
- Honor specific family requests

Return valid JSON only (no markdown fencing):

{
  "plan": [
    {
      "date": "YYYY-MM-DD",
      "recipe": {
        "name": "Recipe name",
        "description": "1-2 sentence description",
        "servings": %d,
        "prep_time_minutes": 15,
        "cook_time_minutes": 25,
        "cuisine": "Italian",
        "tags": ["quick", "kid-friendly"],
        "ingredients": [
          {"name": "kipfilet", "quantity": 400, "unit": "g", "category": "meat"}
        ],
        "instructions": "1. Step one\n2. Step two"
      }
    }
  ],
  "reasoning": "Brief explanation of why these meals were chosen"
}`

const revisionPrompt = `The parent reviewed the meal plan and wants changes.

Current plan (JSON):
%s

Parent's feedback: "%s"

## Instructions
- Only change the meals the parent is unhappy with
- Keep meals that weren't mentioned in the feedback exactly as they are (same date, recipe, ingredients)
- For replaced meals, provide complete recipes with all ingredients and instructions
- Use Dutch ingredient names (for Picnic supermarket search)
- Use metric units

Return the COMPLETE revised plan as valid JSON only (no markdown fencing), in the
same format as the current plan, plus a "reasoning" field describing the changes.`

const classifyPrompt = `Classify this incoming message from a family member in the context of dinner planning.

Message: "%s"
Current planning phase: %s
Sender role: %s

Return valid JSON only:

{
  "intent": "trigger|preference|approval|rejection|change_request|pantry_response|cancel|greeting|other",
  "confidence": 0.0-1.0,
  "summary": "brief description of what the person is saying"
}

Intent definitions:
- trigger: wants to start meal planning ("plan dinner", "wat eten we", "boodschappen")
- preference: expressing food wishes or preferences
- approval: approving/accepting the meal plan ("looks good", "akkoord", "ja")
- rejection: rejecting the plan entirely ("nee", "helemaal opnieuw")
- change_request: wants specific changes ("swap X for Y", "geen vis op dinsdag")
- pantry_response: listing items they already have at home
- cancel: wants to stop the current planning session
- greeting: just saying hi
- other: unrelated to dinner planning`

const pantryMatchPrompt = `The parent said which ingredients they already have at home.

Parent's message: "%s"

Ingredient list (these are the ingredients needed for the meal plan):
%s

Match the parent's message against the ingredient list. The parent may use:
- English names for Dutch ingredients (e.g., "olive oil" = "olijfolie")
- Abbreviations or informal names (e.g., "rice" = "rijst")
- Plural or singular forms
- General terms that cover specific items (e.g., "oil" covers "olijfolie" and "zonnebloemolie")
- If the parent says "nothing" or "none" or similar, return an empty array

Return valid JSON only, an array of ingredient names exactly as they appear in
the ingredient list:
["olijfolie", "rijst"]

Only include ingredients that the parent clearly indicates they have at home.`

