package picnic

const searchTermsPrompt = `Generate Dutch supermarket search terms for finding this ingredient at Picnic (Dutch online supermarket).

Ingredient: %s, %g %s
Category: %s

Return valid JSON only, an array of 2-3 search terms in Dutch, most likely term first:
["term1", "term2"]

Focus on how the product would be named on a supermarket shelf.`

const selectProductPrompt = `Select the best supermarket product match for this recipe ingredient.

Recipe needs: %g %s of %s

Available Picnic products:
%s

Consider:
1. Does the product match the ingredient?
2. Is the quantity sufficient? (if recipe needs 400g and pack is 300g, set count to 2)
3. Prefer basic/unflavored versions unless recipe specifies otherwise
4. Prefer the most common/cheapest option

Return valid JSON only:

{
  "product_id": "the_id",
  "product_name": "product name",
  "count": 1,
  "confidence": 0.0-1.0,
  "note": "optional note about the match"
}

If no good match exists, return {"product_id": null, "confidence": 0, "note": "reason"}`
