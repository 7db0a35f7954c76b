package sqlinline

const QSelectPromptByResult = `--sql 8c5e1b74-0a3d-4f69-92b7-d4e0a6c3f815
select coalesce(nullif(trim(r.prompt_override), ''), t.image_prompt)
from quiz_results r
join tribes t on t.id = r.tribe_id
where r.id = $1::uuid;
`

const QSelectProfileByResult = `--sql 2d9a7f60-b5c1-4e83-a0f2-7e4b9d1c6a38
select r.id, t.name
from quiz_results r
join tribes t on t.id = r.tribe_id
where r.id = $1::uuid;
`
