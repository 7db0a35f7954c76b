package sqlinline

const QUpsertCandidate = `--sql 7d1c2f0a-93b4-4e61-8a5e-2b0f6c9d41e3
insert into portrait_candidates(id, result_id, slot_index, artifact_url, prompt_text, is_primary, created_at)
values (
  gen_random_uuid(),
  $1::uuid,
  $2::int,
  $3::text,
  $4::text,
  $2::int = 0,
  coalesce($5::timestamptz, now())
)
on conflict (result_id, slot_index) do update
set artifact_url = excluded.artifact_url,
    prompt_text  = excluded.prompt_text,
    is_primary   = excluded.is_primary,
    created_at   = excluded.created_at
returning id, result_id, slot_index, coalesce(artifact_url, ''), prompt_text, is_primary, created_at;
`

const QListCandidatesByResult = `--sql 1f8e6a43-5c2d-4b7e-9f10-a3d5c7e2b864
select id, result_id, slot_index, coalesce(artifact_url, ''), prompt_text, is_primary, created_at
from portrait_candidates
where result_id = $1::uuid
  and artifact_url is not null
order by slot_index asc;
`

const QDeleteCandidatesByResult = `--sql c4a92e17-0b6f-4d38-8e21-5f7a9b3c0d6e
delete from portrait_candidates
where result_id = $1::uuid;
`
